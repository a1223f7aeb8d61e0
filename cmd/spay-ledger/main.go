// Command spay-ledger runs the payroll claim ledger against a local LevelDB
// state. It is the reference harness for the deposit/claim flow: a relayer
// process feeds it signed claim bundles produced by spay-cli.
package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"stealthpay/cmd/internal/claimfile"
	"stealthpay/config"
	"stealthpay/core/events"
	"stealthpay/core/state"
	"stealthpay/native/payroll"
	"stealthpay/observability/logging"
	"stealthpay/storage"
)

func main() {
	args := os.Args[1:]
	if len(args) < 2 {
		printUsage()
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("SPAY_ENV"))
	logger := logging.Setup("spay-ledger", env)

	command, configPath := args[0], args[1]
	rest := args[2:]

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open state database", "dataDir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine, err := newEngine(cfg, state.NewManager(db), logger)
	if err != nil {
		logger.Error("failed to configure engine", "error", err)
		os.Exit(1)
	}

	switch command {
	case "fund":
		err = fund(state.NewManager(db), rest)
	case "deposit":
		err = deposit(engine, rest)
	case "claim":
		err = claim(engine, rest)
	case "record":
		err = record(engine, rest)
	case "is-claimed":
		err = isClaimed(engine, rest)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: spay-ledger <command> <config> [arguments]

  fund <config> <address> <token> <amount>            Credit an account (dev harness only)
  deposit <config> <employer> <root> <token> <total>  Register and fund a commitment root
  claim <config> <caller> <claim.json>                Submit a signed claim bundle
  record <config> <root>                              Show the record registered for a root
  is-claimed <config> <address>                       Show whether a stealth address was paid`)
}

func newEngine(cfg *config.Config, mgr *state.Manager, logger *slog.Logger) (*payroll.Engine, error) {
	ledger, err := cfg.Ledger()
	if err != nil {
		return nil, err
	}
	engine := payroll.NewEngine()
	engine.SetState(mgr)
	engine.SetDomain(payroll.Domain{ChainID: big.NewInt(cfg.ChainID), Ledger: ledger})
	engine.SetEmitter(logEmitter{logger: logger})
	return engine, nil
}

// logEmitter forwards ledger events to the structured log, which doubles as
// the indexer feed for this harness.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if l.logger == nil || evt == nil {
		return
	}
	attrs := []any{}
	switch e := evt.(type) {
	case payroll.Deposited:
		for k, v := range e.Event().Attributes {
			attrs = append(attrs, k, v)
		}
	case payroll.Claimed:
		for k, v := range e.Event().Attributes {
			attrs = append(attrs, k, v)
		}
	}
	l.logger.Info(evt.EventType(), attrs...)
}

func fund(mgr *state.Manager, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: fund <config> <address> <token> <amount>")
	}
	addr, err := claimfile.DecodeAddr20(args[0])
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	token, err := claimfile.DecodeToken(args[1])
	if err != nil {
		return err
	}
	amount, err := claimfile.DecodeAmount(args[2])
	if err != nil {
		return err
	}
	acc, err := mgr.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc.SetBalance(token, new(big.Int).Add(acc.Balance(token), amount))
	if err := mgr.PutAccount(addr[:], acc); err != nil {
		return err
	}
	fmt.Printf("Credited %s %s to 0x%x\n", amount, token, addr)
	return nil
}

func deposit(engine *payroll.Engine, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: deposit <config> <employer> <root> <token> <total>")
	}
	employer, err := claimfile.DecodeAddr20(args[0])
	if err != nil {
		return fmt.Errorf("employer: %w", err)
	}
	root, err := claimfile.DecodeHash32(args[1])
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	token, err := claimfile.DecodeToken(args[2])
	if err != nil {
		return err
	}
	total, err := claimfile.DecodeAmount(args[3])
	if err != nil {
		return err
	}
	var attached *big.Int
	if token.IsNative() {
		attached = total
	}
	if err := engine.Deposit(employer, root, token, total, attached); err != nil {
		return err
	}
	fmt.Printf("Registered root 0x%x for %s %s\n", root, total, token)
	return nil
}

func claim(engine *payroll.Engine, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: claim <config> <caller> <claim.json>")
	}
	caller, err := claimfile.DecodeAddr20(args[0])
	if err != nil {
		return fmt.Errorf("caller: %w", err)
	}
	bundle, err := claimfile.ReadClaim(args[1])
	if err != nil {
		return err
	}
	req, err := bundle.Request()
	if err != nil {
		return err
	}
	sig, err := bundle.DecodeSignature()
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	proof, err := bundle.DecodeProof()
	if err != nil {
		return err
	}
	root, err := bundle.DecodeRoot()
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if err := engine.Claim(caller, req, sig, proof, root); err != nil {
		return err
	}
	net := new(big.Int).Sub(req.Amount, req.FeeAmount)
	fmt.Printf("Paid %s %s to 0x%x (fee %s to 0x%x)\n", net, req.Token, req.Recipient, req.FeeAmount, caller)
	return nil
}

func record(engine *payroll.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: record <config> <root>")
	}
	root, err := claimfile.DecodeHash32(args[0])
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	rec, ok, err := engine.Record(root)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No record registered for root.")
		return nil
	}
	fmt.Printf("Employer: 0x%x\nToken:    %s\nTotal:    %s\n", rec.Employer, rec.Token, rec.TotalAmount)
	return nil
}

func isClaimed(engine *payroll.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: is-claimed <config> <address>")
	}
	addr, err := claimfile.DecodeAddr20(args[0])
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	claimed, err := engine.IsClaimed(addr)
	if err != nil {
		return err
	}
	fmt.Printf("claimed: %v\n", claimed)
	return nil
}
