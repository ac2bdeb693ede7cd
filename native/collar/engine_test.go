package collar

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"collarcore/core/types"
	nativecommon "collarcore/native/common"
)

type mockState struct {
	accounts  map[Address]*types.Account
	offers    map[uint64]*LiquidityOffer
	providers map[uint64]*ProviderPosition
	takers    map[uint64]*TakerPosition
	rolls     map[uint64]*RollOffer

	offerSeq    uint64
	providerSeq uint64
	takerSeq    uint64
	rollSeq     uint64
}

func newMockState() *mockState {
	return &mockState{
		accounts:  make(map[Address]*types.Account),
		offers:    make(map[uint64]*LiquidityOffer),
		providers: make(map[uint64]*ProviderPosition),
		takers:    make(map[uint64]*TakerPosition),
		rolls:     make(map[uint64]*RollOffer),
	}
}

func (m *mockState) GetAccount(addr Address) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr Address, acc *types.Account) error {
	m.accounts[addr] = acc.Clone()
	return nil
}

func (m *mockState) OfferPut(offer *LiquidityOffer) error {
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return err
	}
	m.offers[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) OfferGet(id uint64) (*LiquidityOffer, bool) {
	offer, ok := m.offers[id]
	return offer.Clone(), ok
}

func (m *mockState) OfferNextID() (uint64, error) {
	m.offerSeq++
	return m.offerSeq, nil
}

func (m *mockState) ProviderPut(pos *ProviderPosition) error {
	m.providers[pos.ID] = pos.Clone()
	return nil
}

func (m *mockState) ProviderGet(id uint64) (*ProviderPosition, bool) {
	pos, ok := m.providers[id]
	return pos.Clone(), ok
}

func (m *mockState) ProviderNextID() (uint64, error) {
	m.providerSeq++
	return m.providerSeq, nil
}

func (m *mockState) TakerPut(pos *TakerPosition) error {
	m.takers[pos.ID] = pos.Clone()
	return nil
}

func (m *mockState) TakerGet(id uint64) (*TakerPosition, bool) {
	pos, ok := m.takers[id]
	return pos.Clone(), ok
}

func (m *mockState) TakerNextID() (uint64, error) {
	m.takerSeq++
	return m.takerSeq, nil
}

func (m *mockState) RollPut(offer *RollOffer) error {
	m.rolls[offer.ID] = offer.Clone()
	return nil
}

func (m *mockState) RollGet(id uint64) (*RollOffer, bool) {
	offer, ok := m.rolls[id]
	return offer.Clone(), ok
}

func (m *mockState) RollNextID() (uint64, error) {
	m.rollSeq++
	return m.rollSeq, nil
}

func (m *mockState) totalSupply() *big.Int {
	total := big.NewInt(0)
	for _, acc := range m.accounts {
		if acc.Balance != nil {
			total.Add(total, acc.Balance)
		}
	}
	return total
}

func newTestAddress(fill byte) Address {
	var addr Address
	copy(addr[:], bytes.Repeat([]byte{fill}, len(addr)))
	return addr
}

type stubOracle struct {
	price *big.Int
	err   error
}

func (o *stubOracle) CurrentPrice() (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	return new(big.Int).Set(o.price), nil
}

func (o *stubOracle) PastPrice(int64) (*big.Int, error) {
	return o.CurrentPrice()
}

var (
	offersVault   = newTestAddress(0x01)
	providerVault = newTestAddress(0x02)
	takerVault    = newTestAddress(0x03)
	rollVault     = newTestAddress(0x04)
	providerAddr  = newTestAddress(0x10)
	takerAddr     = newTestAddress(0x20)
	feeCollector  = newTestAddress(0x30)
)

type testEnv struct {
	state    *mockState
	offers   *OfferEngine
	provider *ProviderEngine
	taker    *TakerEngine
	rolls    *RollEngine
	oracle   *stubOracle
	clock    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:  newMockState(),
		oracle: &stubOracle{price: big.NewInt(1000)},
		clock:  1_700_000_000,
	}
	now := func() int64 { return env.clock }

	env.offers = NewOfferEngine(offersVault, "ETH-USD")
	env.offers.SetState(env.state)
	env.offers.SetNowFunc(now)

	env.provider = NewProviderEngine(env.offers, providerVault)
	env.provider.SetState(env.state)

	env.taker = NewTakerEngine(env.provider, takerVault)
	env.taker.SetState(env.state)
	env.taker.SetOracle(env.oracle)
	env.taker.SetNowFunc(now)

	env.rolls = NewRollEngine(env.taker, rollVault)
	env.rolls.SetState(env.state)
	env.rolls.SetOracle(env.oracle)
	env.rolls.SetNowFunc(now)

	return env
}

func (env *testEnv) fund(addr Address, amount int64) {
	env.state.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (env *testEnv) balance(t *testing.T, addr Address) *big.Int {
	t.Helper()
	bal, err := AccountBalance(env.state, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

// openStandardPair posts a 90/110 offer for 600 and opens a 500 taker
// position against it at price 1000.
func (env *testEnv) openStandardPair(t *testing.T) *TakerPosition {
	t.Helper()
	env.fund(providerAddr, 1000)
	env.fund(takerAddr, 1000)
	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(600), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	pos, err := env.taker.OpenPairedPosition(takerAddr, big.NewInt(500), offer.ID)
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	return pos
}

func TestCreateOfferPullsFunds(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)

	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(600), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.Available.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("available = %s, want 600", offer.Available)
	}
	if got := env.balance(t, providerAddr); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("provider balance = %s, want 400", got)
	}
	if got := env.balance(t, offersVault); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("offers vault = %s, want 600", got)
	}
}

func TestCreateOfferInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 100)
	if _, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(600), nil); !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("err = %v, want insufficient balance", err)
	}
}

func TestCreateOfferRejectsDegenerateStrikes(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)
	for _, strikes := range [][2]uint64{{10_000, 11_000}, {9000, 10_000}, {11_000, 9000}} {
		if _, err := env.offers.CreateOffer(providerAddr, strikes[0], strikes[1], 86_400, big.NewInt(100), nil); !errors.Is(err, errOfferPolicy) {
			t.Fatalf("strikes %v: err = %v, want policy error", strikes, err)
		}
	}
}

func TestCreateOfferPaused(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)
	env.offers.SetPauses(nativecommon.StaticPauses{"collar.offers": true})
	if _, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(100), nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("err = %v, want module paused", err)
	}
}

func TestUpdateOfferAmount(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)
	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(600), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	updated, err := env.offers.UpdateOfferAmount(providerAddr, offer.ID, big.NewInt(900))
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if updated.Available.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("available = %s, want 900", updated.Available)
	}
	if got := env.balance(t, providerAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("provider balance after raise = %s, want 100", got)
	}

	updated, err = env.offers.UpdateOfferAmount(providerAddr, offer.ID, big.NewInt(200))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if updated.Available.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("available = %s, want 200", updated.Available)
	}
	if got := env.balance(t, providerAddr); got.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("provider balance after lower = %s, want 800", got)
	}

	if _, err := env.offers.UpdateOfferAmount(takerAddr, offer.ID, big.NewInt(100)); !errors.Is(err, errOfferNotPoster) {
		t.Fatalf("non-poster update err = %v, want not poster", err)
	}
}

func TestOpenPairedPosition(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)

	if pos.StartPrice.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("start price = %s, want 1000", pos.StartPrice)
	}
	if pos.Owner != takerAddr {
		t.Fatalf("taker handle owner = %x", pos.Owner)
	}
	if got := env.balance(t, takerAddr); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("taker balance = %s, want 500", got)
	}

	providerPos, err := env.provider.Position(pos.ProviderID)
	if err != nil {
		t.Fatalf("provider position: %v", err)
	}
	if providerPos.Owner != providerAddr {
		t.Fatalf("provider handle owner = %x", providerPos.Owner)
	}
	if providerPos.ProviderLocked.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("provider locked = %s, want 500", providerPos.ProviderLocked)
	}
	if providerPos.TakerID != pos.ID {
		t.Fatalf("provider takerID = %d, want %d", providerPos.TakerID, pos.ID)
	}
	if providerPos.Expiration != env.clock+86_400 {
		t.Fatalf("expiration = %d, want %d", providerPos.Expiration, env.clock+86_400)
	}

	offer, err := env.offers.Offer(providerPos.OfferID)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Available.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("remaining capacity = %s, want 100", offer.Available)
	}
}

func TestOpenPairedPositionCapacityExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)
	env.fund(takerAddr, 1000)
	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(300), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := env.taker.OpenPairedPosition(takerAddr, big.NewInt(500), offer.ID); !errors.Is(err, errOfferCapacity) {
		t.Fatalf("err = %v, want capacity", err)
	}
	// A rejected open must not take the caller's cash.
	if got := env.balance(t, takerAddr); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("taker balance after rejected open = %s, want 1000", got)
	}
	if got := env.balance(t, takerVault); got.Sign() != 0 {
		t.Fatalf("taker vault balance = %s, want 0", got)
	}
}

func TestOpenPairedPositionMinLocked(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)
	env.fund(takerAddr, 1000)
	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(600), big.NewInt(400))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	// 100 taker-side scales to 100 provider-side, below the 400 floor.
	if _, err := env.taker.OpenPairedPosition(takerAddr, big.NewInt(100), offer.ID); !errors.Is(err, errProviderMinLocked) {
		t.Fatalf("err = %v, want min locked", err)
	}
	if got := env.balance(t, takerAddr); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("taker balance after rejected open = %s, want 1000", got)
	}
}

func TestOpenPairedPositionDegenerateStrike(t *testing.T) {
	env := newTestEnv(t)
	env.fund(providerAddr, 1000)
	env.fund(takerAddr, 1000)
	offer, err := env.offers.CreateOffer(providerAddr, 9999, 10_001, 86_400, big.NewInt(600), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	// At a start price of 1 the derived call strike truncates back onto the
	// start price, which would make the settlement range empty.
	env.oracle.price = big.NewInt(1)
	if _, err := env.taker.OpenPairedPosition(takerAddr, big.NewInt(100), offer.ID); !errors.Is(err, errTakerDegenerate) {
		t.Fatalf("err = %v, want degenerate", err)
	}
}

func TestMintFeeCollected(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetProtocolFee(500, feeCollector)
	env.fund(providerAddr, 1000)
	env.fund(takerAddr, 1000)
	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, secondsPerYear, big.NewInt(600), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := env.taker.OpenPairedPosition(takerAddr, big.NewInt(500), offer.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	// 5% of 500 over a full year.
	if got := env.balance(t, feeCollector); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("fee collector balance = %s, want 25", got)
	}
	reloaded, err := env.offers.Offer(offer.ID)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	// Capacity drops by principal plus fee.
	if reloaded.Available.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("remaining capacity = %s, want 75", reloaded.Available)
	}
}

func TestMintFeeSkippedWithoutRecipient(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetProtocolFee(500, Address{})
	pos := env.openStandardPair(t)
	providerPos, err := env.provider.Position(pos.ProviderID)
	if err != nil {
		t.Fatalf("provider position: %v", err)
	}
	if providerPos.ProviderLocked.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("provider locked = %s, want 500", providerPos.ProviderLocked)
	}
	if got := env.balance(t, Address{}); got.Sign() != 0 {
		t.Fatalf("null account balance = %s, want 0", got)
	}
}

func TestSettlePairedPositionPriceFell(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)
	env.clock += 86_400
	env.oracle.price = big.NewInt(950)

	settled, err := env.taker.SettlePairedPosition(newTestAddress(0x99), pos.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Withdrawable.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("taker withdrawable = %s, want 250", settled.Withdrawable)
	}
	if settled.SettledPrice.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("settled price = %s, want 950", settled.SettledPrice)
	}

	providerPos, err := env.provider.Position(pos.ProviderID)
	if err != nil {
		t.Fatalf("provider position: %v", err)
	}
	if !providerPos.Settled {
		t.Fatal("provider position not settled")
	}
	if providerPos.Withdrawable.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("provider withdrawable = %s, want 750", providerPos.Withdrawable)
	}

	if _, err := env.taker.SettlePairedPosition(takerAddr, pos.ID); !errors.Is(err, errTakerSettled) {
		t.Fatalf("double settle err = %v, want already settled", err)
	}
}

func TestSettlePairedPositionBeforeExpiry(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)
	if _, err := env.taker.SettlePairedPosition(takerAddr, pos.ID); !errors.Is(err, errTakerNotExpired) {
		t.Fatalf("err = %v, want not expired", err)
	}
}

func TestWithdrawFromSettled(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)
	env.clock += 86_400
	env.oracle.price = big.NewInt(1050)
	if _, err := env.taker.SettlePairedPosition(takerAddr, pos.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, err := env.taker.WithdrawFromSettled(takerAddr, pos.ID)
	if err != nil {
		t.Fatalf("taker withdraw: %v", err)
	}
	if got.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("taker payout = %s, want 750", got)
	}
	if _, err := env.taker.WithdrawFromSettled(takerAddr, pos.ID); !errors.Is(err, errTakerBurned) {
		t.Fatalf("double withdraw err = %v, want burned", err)
	}

	got, err = env.provider.WithdrawFromSettled(providerAddr, pos.ProviderID)
	if err != nil {
		t.Fatalf("provider withdraw: %v", err)
	}
	if got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("provider payout = %s, want 250", got)
	}
	if _, err := env.provider.WithdrawFromSettled(providerAddr, pos.ProviderID); !errors.Is(err, errProviderBurned) {
		t.Fatalf("double provider withdraw err = %v, want burned", err)
	}

	// 1000 locked in at open, 1000 paid back out.
	if got := env.balance(t, takerAddr); got.Cmp(big.NewInt(1250)) != 0 {
		t.Fatalf("taker final balance = %s, want 1250", got)
	}
	if got := env.balance(t, providerAddr); got.Cmp(big.NewInt(650)) != 0 {
		t.Fatalf("provider final balance = %s, want 650", got)
	}
}

func TestWithdrawRequiresSettlement(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)
	if _, err := env.taker.WithdrawFromSettled(takerAddr, pos.ID); !errors.Is(err, errTakerNotSettled) {
		t.Fatalf("err = %v, want not settled", err)
	}
	if _, err := env.provider.WithdrawFromSettled(providerAddr, pos.ProviderID); !errors.Is(err, errProviderNotSettled) {
		t.Fatalf("provider err = %v, want not settled", err)
	}
}

func TestSettleAsCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.taker.SetGraceDelay(3600)
	pos := env.openStandardPair(t)

	env.clock += 86_400
	if _, err := env.taker.SettleAsCancelled(takerAddr, pos.ID); !errors.Is(err, errTakerGraceNotPassed) {
		t.Fatalf("before grace err = %v, want grace not passed", err)
	}

	env.clock += 3600
	settled, err := env.taker.SettleAsCancelled(takerAddr, pos.ID)
	if err != nil {
		t.Fatalf("settle as cancelled: %v", err)
	}
	if settled.Withdrawable.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("taker withdrawable = %s, want principal 500", settled.Withdrawable)
	}
	if settled.SettledPrice.Sign() != 0 {
		t.Fatalf("settled price = %s, want zero sentinel", settled.SettledPrice)
	}
	providerPos, err := env.provider.Position(pos.ProviderID)
	if err != nil {
		t.Fatalf("provider position: %v", err)
	}
	if providerPos.Withdrawable.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("provider withdrawable = %s, want principal 500", providerPos.Withdrawable)
	}
}

func TestCancelPairedPosition(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)

	// Consent requires both handles; the provider has not transferred theirs.
	if _, err := env.taker.CancelPairedPosition(takerAddr, pos.ID); !errors.Is(err, errTakerConsent) {
		t.Fatalf("err = %v, want consent", err)
	}

	if err := env.provider.TransferPosition(providerAddr, takerAddr, pos.ProviderID); err != nil {
		t.Fatalf("transfer provider handle: %v", err)
	}
	total, err := env.taker.CancelPairedPosition(takerAddr, pos.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if total.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("refund = %s, want 1000", total)
	}
	if got := env.balance(t, takerAddr); got.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("taker balance = %s, want 1500", got)
	}

	if _, err := env.taker.CancelPairedPosition(takerAddr, pos.ID); !errors.Is(err, errTakerBurned) {
		t.Fatalf("double cancel err = %v, want burned", err)
	}
	providerPos, err := env.provider.Position(pos.ProviderID)
	if err != nil {
		t.Fatalf("provider position: %v", err)
	}
	if !providerPos.Burned {
		t.Fatal("provider handle not burned after cancel")
	}
}

func TestTransferPositionHandles(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)
	other := newTestAddress(0x44)

	if err := env.taker.TransferPosition(takerAddr, other, pos.ID); err != nil {
		t.Fatalf("taker transfer: %v", err)
	}
	if err := env.taker.TransferPosition(takerAddr, other, pos.ID); !errors.Is(err, errTakerNotOwner) {
		t.Fatalf("stale owner transfer err = %v, want not owner", err)
	}

	env.clock += 86_400
	if _, err := env.taker.SettlePairedPosition(other, pos.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// The old owner cannot withdraw after transferring.
	if _, err := env.taker.WithdrawFromSettled(takerAddr, pos.ID); !errors.Is(err, errTakerNotOwner) {
		t.Fatalf("old owner withdraw err = %v, want not owner", err)
	}
	if _, err := env.taker.WithdrawFromSettled(other, pos.ID); err != nil {
		t.Fatalf("new owner withdraw: %v", err)
	}
}

func TestLifecycleConservesSupply(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetProtocolFee(250, feeCollector)
	env.fund(providerAddr, 1000)
	env.fund(takerAddr, 1000)
	before := env.state.totalSupply()

	offer, err := env.offers.CreateOffer(providerAddr, 9000, 11000, 86_400, big.NewInt(600), nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	pos, err := env.taker.OpenPairedPosition(takerAddr, big.NewInt(500), offer.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	env.clock += 86_400
	env.oracle.price = big.NewInt(1080)
	if _, err := env.taker.SettlePairedPosition(takerAddr, pos.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := env.taker.WithdrawFromSettled(takerAddr, pos.ID); err != nil {
		t.Fatalf("taker withdraw: %v", err)
	}
	if _, err := env.provider.WithdrawFromSettled(providerAddr, pos.ProviderID); err != nil {
		t.Fatalf("provider withdraw: %v", err)
	}

	if after := env.state.totalSupply(); after.Cmp(before) != 0 {
		t.Fatalf("total supply drifted from %s to %s", before, after)
	}
}

func TestSettlePausedPositions(t *testing.T) {
	env := newTestEnv(t)
	pos := env.openStandardPair(t)
	env.clock += 86_400
	env.taker.SetPauses(nativecommon.StaticPauses{"collar.positions": true})
	if _, err := env.taker.SettlePairedPosition(takerAddr, pos.ID); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("err = %v, want module paused", err)
	}
}
