package payroll

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"stealthpay/core/events"
	"stealthpay/core/types"
	"stealthpay/crypto"
	"stealthpay/crypto/stealth"
	"stealthpay/merkle"
)

type mockState struct {
	records  map[[32]byte]*Record
	claimed  map[[20]byte]bool
	accounts map[[20]byte]*types.Account

	failPutAccount map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		records:        make(map[[32]byte]*Record),
		claimed:        make(map[[20]byte]bool),
		accounts:       make(map[[20]byte]*types.Account),
		failPutAccount: make(map[[20]byte]bool),
	}
}

func (m *mockState) PayrollPut(root [32]byte, rec *Record) error {
	m.records[root] = rec.Clone()
	return nil
}

func (m *mockState) PayrollGet(root [32]byte) (*Record, bool, error) {
	rec, ok := m.records[root]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *mockState) Claimed(addr [20]byte) (bool, error) {
	return m.claimed[addr], nil
}

func (m *mockState) SetClaimed(addr [20]byte, claimed bool) error {
	if claimed {
		m.claimed[addr] = true
	} else {
		delete(m.claimed, addr)
	}
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	if acc, ok := m.accounts[key]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (m *mockState) PutAccount(addr []byte, acc *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	if m.failPutAccount[key] {
		return fmt.Errorf("mock: account write rejected")
	}
	m.accounts[key] = acc.Clone()
	return nil
}

func (m *mockState) fund(addr [20]byte, token types.Token, amount int64) {
	acc, ok := m.accounts[addr]
	if !ok {
		acc = types.NewAccount()
		m.accounts[addr] = acc
	}
	acc.SetBalance(token, new(big.Int).Add(acc.Balance(token), big.NewInt(amount)))
}

func (m *mockState) balance(addr [20]byte, token types.Token) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return acc.Balance(token)
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

const testNow = int64(1_700_000_000)

func testDomain() Domain {
	return Domain{ChainID: big.NewInt(1337), Ledger: newTestAddress(0xEE)}
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *captureEmitter) {
	t.Helper()
	state := newMockState()
	emitter := &captureEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetDomain(testDomain())
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return testNow })
	return engine, state, emitter
}

// payee bundles the key material for one stealth payout entry.
type payee struct {
	addr [20]byte
	key  *crypto.PrivateKey
}

func newPayee(t *testing.T) *payee {
	t.Helper()
	metaKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate meta key: %v", err)
	}
	ephemeralKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate ephemeral key: %v", err)
	}
	addr, _, err := stealth.ComputeStealthAddress(metaKey.PubKey().Bytes(), ephemeralKey.Bytes())
	if err != nil {
		t.Fatalf("compute stealth address: %v", err)
	}
	privBytes, err := stealth.RecoverStealthPrivateKey(metaKey.Bytes(), ephemeralKey.PubKey().Bytes())
	if err != nil {
		t.Fatalf("recover stealth key: %v", err)
	}
	stealthKey, err := crypto.PrivateKeyFromBytes(privBytes)
	if err != nil {
		t.Fatalf("parse stealth key: %v", err)
	}
	return &payee{addr: addr, key: stealthKey}
}

func mustLeaf(t *testing.T, addr [20]byte, token types.Token, amount int64) [32]byte {
	t.Helper()
	leaf, err := merkle.Leaf(addr, [20]byte(token), big.NewInt(amount))
	if err != nil {
		t.Fatalf("build leaf: %v", err)
	}
	return leaf
}

func mustSign(t *testing.T, req *ClaimRequest, key *crypto.PrivateKey) []byte {
	t.Helper()
	sig, err := SignClaim(testDomain(), req, key.PrivateKey)
	if err != nil {
		t.Fatalf("sign claim: %v", err)
	}
	return sig
}

func TestDepositTokenFlow(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	employer := newTestAddress(0x01)
	token := types.Token(newTestAddress(0x77))
	root := [32]byte{0xAA}
	state.fund(employer, token, 5000)

	if err := engine.Deposit(employer, root, token, big.NewInt(5000), nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := state.balance(employer, token); got.Sign() != 0 {
		t.Fatalf("employer should be fully debited, has %s", got)
	}
	if got := state.balance(engine.Vault(), token); got.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("vault should hold 5000, has %s", got)
	}
	rec, ok, err := engine.Record(root)
	if err != nil || !ok {
		t.Fatalf("Record: ok=%v err=%v", ok, err)
	}
	if rec.Employer != employer || rec.Token != token || rec.TotalAmount.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != EventTypeDeposited {
		t.Fatalf("expected one deposited event, got %+v", emitter.events)
	}
}

func TestDepositNativeAttachedValue(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	employer := newTestAddress(0x01)
	state.fund(employer, types.NativeToken, 1000)
	root := [32]byte{0xAB}

	err := engine.Deposit(employer, root, types.NativeToken, big.NewInt(1000), big.NewInt(999))
	if !errors.Is(err, ErrEthAmountMismatch) {
		t.Fatalf("expected ErrEthAmountMismatch, got %v", err)
	}
	err = engine.Deposit(employer, root, types.NativeToken, big.NewInt(1000), nil)
	if !errors.Is(err, ErrEthAmountMismatch) {
		t.Fatalf("expected ErrEthAmountMismatch for missing value, got %v", err)
	}
	if err := engine.Deposit(employer, root, types.NativeToken, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	token := types.Token(newTestAddress(0x77))
	state.fund(employer, token, 100)
	err = engine.Deposit(employer, [32]byte{0xAC}, token, big.NewInt(100), big.NewInt(100))
	if !errors.Is(err, ErrEthAmountMismatch) {
		t.Fatalf("expected ErrEthAmountMismatch for token deposit with value, got %v", err)
	}
}

func TestDepositInsufficientBalance(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	employer := newTestAddress(0x01)
	token := types.Token(newTestAddress(0x77))
	state.fund(employer, token, 10)

	if err := engine.Deposit(employer, [32]byte{0xAD}, token, big.NewInt(5000), nil); err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if _, ok := state.records[[32]byte{0xAD}]; ok {
		t.Fatal("failed deposit must not register a record")
	}
}

func TestDepositOverwritesRecord(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	employer := newTestAddress(0x01)
	other := newTestAddress(0x02)
	token := types.Token(newTestAddress(0x77))
	root := [32]byte{0xAE}
	state.fund(employer, token, 5000)
	state.fund(other, token, 9000)

	if err := engine.Deposit(employer, root, token, big.NewInt(5000), nil); err != nil {
		t.Fatalf("first Deposit: %v", err)
	}
	if err := engine.Deposit(other, root, token, big.NewInt(9000), nil); err != nil {
		t.Fatalf("second Deposit: %v", err)
	}
	rec, ok, err := engine.Record(root)
	if err != nil || !ok {
		t.Fatalf("Record: ok=%v err=%v", ok, err)
	}
	if rec.Employer != other || rec.TotalAmount.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("record must reflect the latest deposit, got %+v", rec)
	}
}

// TestClaimFullFlow drives the reference scenario: a single-leaf commitment
// for 5000 of token T, claimed with a 50 fee through a relayer.
func TestClaimFullFlow(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	employer := newTestAddress(0x01)
	relayer := newTestAddress(0x02)
	recipient := newTestAddress(0x03)
	token := types.Token(newTestAddress(0x77))
	state.fund(employer, token, 5000)

	worker := newPayee(t)
	root := mustLeaf(t, worker.addr, token, 5000)
	if err := engine.Deposit(employer, root, token, big.NewInt(5000), nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	req := &ClaimRequest{
		StealthAddress: worker.addr,
		Token:          token,
		Amount:         big.NewInt(5000),
		Recipient:      recipient,
		FeeAmount:      big.NewInt(50),
		Deadline:       testNow + 3600,
	}
	sig := mustSign(t, req, worker.key)

	if err := engine.Claim(relayer, req, sig, nil, root); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if got := state.balance(recipient, token); got.Cmp(big.NewInt(4950)) != 0 {
		t.Fatalf("recipient should hold 4950, has %s", got)
	}
	if got := state.balance(relayer, token); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("relayer should hold 50, has %s", got)
	}
	if got := state.balance(engine.Vault(), token); got.Sign() != 0 {
		t.Fatalf("vault custody should be empty, has %s", got)
	}
	claimed, err := engine.IsClaimed(worker.addr)
	if err != nil || !claimed {
		t.Fatalf("IsClaimed: claimed=%v err=%v", claimed, err)
	}
	if len(emitter.events) != 2 || emitter.events[1].EventType() != EventTypeClaimed {
		t.Fatalf("expected deposit+claim events, got %+v", emitter.events)
	}

	// An identical resubmission, signature and proof intact, must fail.
	if err := engine.Claim(relayer, req, sig, nil, root); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimMultiLeafCommitment(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	employer := newTestAddress(0x01)
	relayer := newTestAddress(0x02)
	token := types.Token(newTestAddress(0x77))

	amounts := []int64{1000, 2500, 730}
	workers := make([]*payee, len(amounts))
	leaves := make([][32]byte, len(amounts))
	total := int64(0)
	for i, amount := range amounts {
		workers[i] = newPayee(t)
		leaves[i] = mustLeaf(t, workers[i].addr, token, amount)
		total += amount
	}
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	root := tree.Root()

	state.fund(employer, token, total)
	if err := engine.Deposit(employer, root, token, big.NewInt(total), nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	for i, worker := range workers {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("Proof(%d): %v", i, err)
		}
		recipient := newTestAddress(byte(0x10 + i))
		req := &ClaimRequest{
			StealthAddress: worker.addr,
			Token:          token,
			Amount:         big.NewInt(amounts[i]),
			Recipient:      recipient,
			FeeAmount:      big.NewInt(10),
			Deadline:       testNow + 3600,
		}
		if err := engine.Claim(relayer, req, mustSign(t, req, worker.key), proof, root); err != nil {
			t.Fatalf("Claim(%d): %v", i, err)
		}
		if got := state.balance(recipient, token); got.Cmp(big.NewInt(amounts[i]-10)) != 0 {
			t.Fatalf("recipient %d should hold %d, has %s", i, amounts[i]-10, got)
		}
	}
	if got := state.balance(relayer, token); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("relayer should hold 30 in fees, has %s", got)
	}
	if got := state.balance(engine.Vault(), token); got.Sign() != 0 {
		t.Fatalf("vault custody should be empty, has %s", got)
	}
}

// claimFixture registers a funded single-leaf commitment and returns the
// payee plus a valid signed request tests can then perturb.
func claimFixture(t *testing.T, engine *Engine, state *mockState) (*payee, *ClaimRequest, []byte, [32]byte) {
	t.Helper()
	employer := newTestAddress(0x01)
	token := types.Token(newTestAddress(0x77))
	state.fund(employer, token, 5000)

	worker := newPayee(t)
	root := mustLeaf(t, worker.addr, token, 5000)
	if err := engine.Deposit(employer, root, token, big.NewInt(5000), nil); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	req := &ClaimRequest{
		StealthAddress: worker.addr,
		Token:          token,
		Amount:         big.NewInt(5000),
		Recipient:      newTestAddress(0x03),
		FeeAmount:      big.NewInt(50),
		Deadline:       testNow + 3600,
	}
	return worker, req, mustSign(t, req, worker.key), root
}

func TestClaimExpired(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	worker, req, _, root := claimFixture(t, engine, state)
	req.Deadline = testNow - 1
	// Even a fresh, valid signature over the expired request must not get
	// past the deadline check.
	sig := mustSign(t, req, worker.key)
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrExpiredRequest) {
		t.Fatalf("expected ErrExpiredRequest, got %v", err)
	}
}

func TestClaimFeeExceedsAmount(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, root := claimFixture(t, engine, state)
	req.FeeAmount = big.NewInt(5001)
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrFeeExceedsAmount) {
		t.Fatalf("expected ErrFeeExceedsAmount, got %v", err)
	}
}

func TestClaimUnknownRoot(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, _ := claimFixture(t, engine, state)
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, [32]byte{0xFF})
	if !errors.Is(err, ErrUnknownRoot) {
		t.Fatalf("expected ErrUnknownRoot, got %v", err)
	}
}

// TestClaimTokenMismatch covers tenant isolation: a proof valid for one
// root combined with a different token field must fail before the proof is
// even considered.
func TestClaimTokenMismatch(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, root := claimFixture(t, engine, state)
	req.Token = types.Token(newTestAddress(0x88))
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestClaimTamperedAmountFailsProof(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, root := claimFixture(t, engine, state)
	// A tampered amount must surface as a commitment mismatch, not a
	// signature failure.
	req.Amount = big.NewInt(6000)
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
}

func TestClaimWrongSigner(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, _, root := claimFixture(t, engine, state)
	impostor, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig := mustSign(t, req, impostor)
	claimErr := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(claimErr, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", claimErr)
	}
	claimed, err := engine.IsClaimed(req.StealthAddress)
	if err != nil || claimed {
		t.Fatalf("failed claim must not set the flag: claimed=%v err=%v", claimed, err)
	}
}

func TestClaimTransferFailureRollsBack(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, root := claimFixture(t, engine, state)
	relayer := newTestAddress(0x02)
	state.failPutAccount[req.Recipient] = true

	err := engine.Claim(relayer, req, sig, nil, root)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	claimed, err := engine.IsClaimed(req.StealthAddress)
	if err != nil || claimed {
		t.Fatalf("claim flag must roll back: claimed=%v err=%v", claimed, err)
	}
	token := req.Token
	if got := state.balance(engine.Vault(), token); got.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("vault custody must be intact, has %s", got)
	}
	if got := state.balance(relayer, token); got.Sign() != 0 {
		t.Fatalf("relayer must receive nothing, has %s", got)
	}

	// Once the write succeeds the same request goes through.
	delete(state.failPutAccount, req.Recipient)
	if err := engine.Claim(relayer, req, sig, nil, root); err != nil {
		t.Fatalf("retry after transient failure: %v", err)
	}
}

func TestClaimRecipientIsRelayer(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	worker, req, _, root := claimFixture(t, engine, state)
	relayer := newTestAddress(0x02)
	req.Recipient = relayer

	// Re-sign since the recipient changed.
	sig := mustSign(t, req, worker.key)
	if err := engine.Claim(relayer, req, sig, nil, root); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got := state.balance(relayer, req.Token); got.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("relayer as recipient should hold the full 5000, has %s", got)
	}
}

func TestClaimCheckOrder(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, root := claimFixture(t, engine, state)

	// Mark claimed, then expire: the deadline check still fires first.
	if err := state.SetClaimed(req.StealthAddress, true); err != nil {
		t.Fatalf("SetClaimed: %v", err)
	}
	req.Deadline = testNow - 1
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrExpiredRequest) {
		t.Fatalf("deadline must be checked before the claim flag, got %v", err)
	}

	// Restore the deadline: now the claim flag fires before fee validation.
	req.Deadline = testNow + 3600
	req.FeeAmount = big.NewInt(9999)
	err = engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("claim flag must be checked before fee, got %v", err)
	}
}

func TestClaimRejectsNegativeAmounts(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, req, sig, root := claimFixture(t, engine, state)
	req.Amount = big.NewInt(-1)
	err := engine.Claim(newTestAddress(0x02), req, sig, nil, root)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
