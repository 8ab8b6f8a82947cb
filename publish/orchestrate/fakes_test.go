package orchestrate_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/TranTop2806/speedrun-challenge-5/publish/orchestrate"
)

var deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// fakeRegistry hands out sequential addresses and remembers what it
// deployed, so a second Deploy of the same name is a reuse.
type fakeRegistry struct {
	next     int64
	deployed map[string]orchestrate.Deployed
	args     map[string][]any
	order    []string
	fail     map[string]error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		next:     0x100,
		deployed: map[string]orchestrate.Deployed{},
		args:     map[string][]any{},
		fail:     map[string]error{},
	}
}

func (r *fakeRegistry) Deploy(_ context.Context, name string, args ...any) (orchestrate.Deployed, error) {
	r.order = append(r.order, name)
	r.args[name] = args
	if err := r.fail[name]; err != nil {
		return orchestrate.Deployed{}, err
	}
	if d, ok := r.deployed[name]; ok {
		d.Reused = true
		return d, nil
	}
	d := orchestrate.Deployed{Name: name, Address: common.BigToAddress(big.NewInt(r.next))}
	r.next++
	r.deployed[name] = d
	return d, nil
}

// ledger is a toy model of the token, the pool and native balances. Every
// mutating call comes from the deployer.
type ledger struct {
	tokens      map[common.Address]*big.Int
	native      map[common.Address]*big.Int
	allowance   map[common.Address]*big.Int
	poolTokens  *big.Int
	poolNative  *big.Int
	initialized bool
	calls       []string
	fail        map[string]error
}

func newLedger() *ledger {
	return &ledger{
		tokens:    map[common.Address]*big.Int{},
		native:    map[common.Address]*big.Int{},
		allowance: map[common.Address]*big.Int{},
		fail:      map[string]error{},
	}
}

func (l *ledger) balance(m map[common.Address]*big.Int, a common.Address) *big.Int {
	if v, ok := m[a]; ok {
		return v
	}
	return new(big.Int)
}

func (l *ledger) enter(method string) error {
	l.calls = append(l.calls, method)
	return l.fail[method]
}

type fakeToken struct{ l *ledger }

func (t fakeToken) MintTo(_ context.Context, to common.Address, amount *big.Int) error {
	if err := t.l.enter("mintTo"); err != nil {
		return err
	}
	t.l.tokens[to] = new(big.Int).Add(t.l.balance(t.l.tokens, to), amount)
	return nil
}

func (t fakeToken) Approve(_ context.Context, spender common.Address, amount *big.Int) error {
	if err := t.l.enter("approve"); err != nil {
		return err
	}
	t.l.allowance[spender] = new(big.Int).Set(amount)
	return nil
}

func (t fakeToken) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if err := t.l.enter("transfer"); err != nil {
		return err
	}
	from := t.l.balance(t.l.tokens, deployer)
	if from.Cmp(amount) < 0 {
		return errors.New("execution reverted: ERC20InsufficientBalance")
	}
	t.l.tokens[deployer] = new(big.Int).Sub(from, amount)
	t.l.tokens[to] = new(big.Int).Add(t.l.balance(t.l.tokens, to), amount)
	return nil
}

func (t fakeToken) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	return t.l.balance(t.l.tokens, account), nil
}

type fakeDEX struct {
	l    *ledger
	addr common.Address
}

func (d fakeDEX) Init(_ context.Context, tokenAmount, value *big.Int) error {
	if err := d.l.enter("init"); err != nil {
		return err
	}
	if d.l.initialized {
		return errors.New("execution reverted: DEX already has liquidity")
	}
	if d.l.balance(d.l.allowance, d.addr).Cmp(tokenAmount) < 0 {
		return errors.New("execution reverted: ERC20InsufficientAllowance")
	}
	if d.l.balance(d.l.tokens, deployer).Cmp(tokenAmount) < 0 {
		return errors.New("execution reverted: ERC20InsufficientBalance")
	}
	if d.l.balance(d.l.native, deployer).Cmp(value) < 0 {
		return errors.New("insufficient funds for gas * price + value")
	}
	d.l.tokens[deployer] = new(big.Int).Sub(d.l.tokens[deployer], tokenAmount)
	d.l.tokens[d.addr] = new(big.Int).Add(d.l.balance(d.l.tokens, d.addr), tokenAmount)
	d.l.allowance[d.addr] = new(big.Int).Sub(d.l.allowance[d.addr], tokenAmount)
	d.l.native[deployer] = new(big.Int).Sub(d.l.native[deployer], value)
	d.l.poolTokens, d.l.poolNative = tokenAmount, value
	d.l.initialized = true
	return nil
}

func (d fakeDEX) CurrentPrice(context.Context) (*big.Int, error) {
	if !d.l.initialized {
		return nil, errors.New("execution reverted: no liquidity")
	}
	price := new(big.Int).Mul(d.l.poolNative, big.NewInt(1e18))
	return price.Quo(price, d.l.poolTokens), nil
}

type fakeHandles struct{ l *ledger }

func (h fakeHandles) Token(common.Address) orchestrate.Token { return fakeToken{h.l} }

func (h fakeHandles) Exchange(addr common.Address) orchestrate.Exchange {
	return fakeDEX{l: h.l, addr: addr}
}

// fakeRPC understands hardhat_setBalance only.
type fakeRPC struct {
	l     *ledger
	calls []string
	fail  error
}

func (r *fakeRPC) Send(_ context.Context, method string, _ any, params ...any) error {
	r.calls = append(r.calls, method)
	if r.fail != nil {
		return r.fail
	}
	if method != "hardhat_setBalance" || len(params) != 2 {
		return fmt.Errorf("unexpected rpc %s%v", method, params)
	}
	amount, err := hexutil.DecodeBig(params[1].(string))
	if err != nil {
		return err
	}
	r.l.native[params[0].(common.Address)] = amount
	return nil
}

type fakeBalances struct {
	l   *ledger
	err error
}

func (b fakeBalances) BalanceAt(_ context.Context, addr common.Address) (*big.Int, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.l.balance(b.l.native, addr), nil
}
