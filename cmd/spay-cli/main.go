package main

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"

	"stealthpay/cmd/internal/claimfile"
	"stealthpay/cmd/internal/passphrase"
	"stealthpay/config"
	"stealthpay/crypto"
	"stealthpay/crypto/stealth"
	"stealthpay/merkle"
	"stealthpay/native/payroll"

	"github.com/google/uuid"
)

const keystorePassEnv = "SPAY_KEYSTORE_PASS"

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	var err error
	switch command := args[0]; command {
	case "generate-key":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore path.")
			printUsage()
			return
		}
		err = generateKey(args[1])
	case "meta-pubkey":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a keystore path.")
			printUsage()
			return
		}
		err = metaPubkey(args[1])
	case "stealth-address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the payee's meta public key.")
			printUsage()
			return
		}
		ephemeral := ""
		if len(args) > 2 {
			ephemeral = args[2]
		}
		err = stealthAddress(args[1], ephemeral)
	case "recover-key":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a keystore path and the ephemeral public key.")
			printUsage()
			return
		}
		err = recoverKey(args[1], args[2])
	case "build-commitment":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a batch file and an output path.")
			printUsage()
			return
		}
		err = buildCommitment(args[1], args[2])
	case "sign-claim":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a config file, keystore path, ephemeral public key and claim file.")
			printUsage()
			return
		}
		out := args[4]
		if len(args) > 5 {
			out = args[5]
		}
		err = signClaim(args[1], args[2], args[3], args[4], out)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: spay-cli <command> [arguments]

Payee commands:
  generate-key <keystore>                       Create a meta keypair and save it encrypted
  meta-pubkey <keystore>                        Print the meta public key to share with payers
  recover-key <keystore> <ephemeral-pub>        Recover the stealth private key for a payout
  sign-claim <config> <keystore> <ephemeral-pub> <claim.json> [out.json]
                                                Sign a claim bundle for relayer submission

Payer commands:
  stealth-address <meta-pub> [ephemeral-priv]   Derive a one-time payout address
  build-commitment <batch.json> <out.json>      Build the Merkle commitment for a payout batch`)
}

func loadMetaKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadMetaKey(path, pass)
}

func generateKey(path string) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return err
	}
	if err := crypto.SaveMetaKey(path, key, pass); err != nil {
		return err
	}
	fmt.Printf("Saved meta key to %s\n", path)
	fmt.Printf("Address:        %s\n", key.PubKey().Address())
	fmt.Printf("Meta publickey: 0x%x\n", key.PubKey().Bytes())
	return nil
}

func metaPubkey(path string) error {
	key, err := loadMetaKey(path)
	if err != nil {
		return err
	}
	pub, err := stealth.DeriveMetaPublicKey(key.Bytes())
	if err != nil {
		return err
	}
	fmt.Printf("0x%x\n", pub)
	return nil
}

func stealthAddress(metaPubHex, ephemeralPrivHex string) error {
	metaPub, err := claimfile.DecodeHex(metaPubHex)
	if err != nil {
		return fmt.Errorf("meta public key: %w", err)
	}
	var ephemeral *crypto.PrivateKey
	if ephemeralPrivHex == "" {
		ephemeral, err = crypto.GeneratePrivateKey()
	} else {
		var raw []byte
		raw, err = claimfile.DecodeHex(ephemeralPrivHex)
		if err == nil {
			ephemeral, err = crypto.PrivateKeyFromBytes(raw)
		}
	}
	if err != nil {
		return fmt.Errorf("ephemeral key: %w", err)
	}
	addr, stealthPub, err := stealth.ComputeStealthAddress(metaPub, ephemeral.Bytes())
	if err != nil {
		return err
	}
	fmt.Printf("Stealth address:      0x%x\n", addr)
	fmt.Printf("Stealth address:      %s\n", crypto.NewAddress(crypto.SpayPrefix, addr[:]))
	fmt.Printf("Stealth publickey:    0x%x\n", stealthPub)
	fmt.Printf("Ephemeral publickey:  0x%x\n", ephemeral.PubKey().Bytes())
	fmt.Println("Publish the ephemeral public key alongside the payout; the payee needs it to claim.")
	return nil
}

func recoverKey(keystorePath, ephemeralPubHex string) error {
	key, err := loadMetaKey(keystorePath)
	if err != nil {
		return err
	}
	ephemeralPub, err := claimfile.DecodeHex(ephemeralPubHex)
	if err != nil {
		return fmt.Errorf("ephemeral public key: %w", err)
	}
	priv, err := stealth.RecoverStealthPrivateKey(key.Bytes(), ephemeralPub)
	if err != nil {
		return err
	}
	addr, err := stealth.AddressFromPrivateKey(priv)
	if err != nil {
		return err
	}
	fmt.Printf("Stealth address: 0x%x\n", addr)
	fmt.Printf("Private key:     0x%x\n", priv)
	return nil
}

func buildCommitment(batchPath, outPath string) error {
	batch, err := claimfile.ReadBatch(batchPath)
	if err != nil {
		return err
	}
	leaves := make([][32]byte, len(batch.Leaves))
	total := big.NewInt(0)
	token := batch.Leaves[0].Token
	for i, entry := range batch.Leaves {
		if entry.Token != token {
			return fmt.Errorf("leaf %d: batch mixes tokens %q and %q; one commitment per token", i, token, entry.Token)
		}
		addr, err := claimfile.DecodeAddr20(entry.StealthAddress)
		if err != nil {
			return fmt.Errorf("leaf %d: %w", i, err)
		}
		tok, err := claimfile.DecodeToken(entry.Token)
		if err != nil {
			return fmt.Errorf("leaf %d: %w", i, err)
		}
		amount, err := claimfile.DecodeAmount(entry.Amount)
		if err != nil {
			return fmt.Errorf("leaf %d: %w", i, err)
		}
		leaf, err := merkle.Leaf(addr, [20]byte(tok), amount)
		if err != nil {
			return fmt.Errorf("leaf %d: %w", i, err)
		}
		leaves[i] = leaf
		total.Add(total, amount)
	}
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		return err
	}
	root := tree.Root()
	out := &claimfile.Commitment{
		BatchID:     uuid.NewString(),
		Root:        "0x" + hex.EncodeToString(root[:]),
		Token:       token,
		TotalAmount: total.String(),
		Leaves:      make([]claimfile.CommitmentLeaf, len(leaves)),
	}
	for i := range leaves {
		proof, err := tree.Proof(i)
		if err != nil {
			return err
		}
		encoded := make([]string, len(proof))
		for j, sibling := range proof {
			encoded[j] = "0x" + hex.EncodeToString(sibling[:])
		}
		out.Leaves[i] = claimfile.CommitmentLeaf{
			BatchLeaf: batch.Leaves[i],
			Leaf:      "0x" + hex.EncodeToString(leaves[i][:]),
			Proof:     encoded,
		}
	}
	if err := claimfile.WriteJSON(outPath, out); err != nil {
		return err
	}
	fmt.Printf("Batch %s\n", out.BatchID)
	fmt.Printf("Root:  %s\n", out.Root)
	fmt.Printf("Total: %s %s\n", out.TotalAmount, token)
	fmt.Printf("Wrote %d leaves with proofs to %s\n", len(leaves), outPath)
	return nil
}

func signClaim(configPath, keystorePath, ephemeralPubHex, claimPath, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ledger, err := cfg.Ledger()
	if err != nil {
		return err
	}
	domain := payroll.Domain{ChainID: big.NewInt(cfg.ChainID), Ledger: ledger}

	key, err := loadMetaKey(keystorePath)
	if err != nil {
		return err
	}
	ephemeralPub, err := claimfile.DecodeHex(ephemeralPubHex)
	if err != nil {
		return fmt.Errorf("ephemeral public key: %w", err)
	}
	privBytes, err := stealth.RecoverStealthPrivateKey(key.Bytes(), ephemeralPub)
	if err != nil {
		return err
	}
	stealthKey, err := crypto.PrivateKeyFromBytes(privBytes)
	if err != nil {
		return err
	}

	claim, err := claimfile.ReadClaim(claimPath)
	if err != nil {
		return err
	}
	req, err := claim.Request()
	if err != nil {
		return err
	}
	signerAddr, err := stealth.AddressFromPrivateKey(privBytes)
	if err != nil {
		return err
	}
	if signerAddr != req.StealthAddress {
		return fmt.Errorf("recovered stealth key controls 0x%x, claim names 0x%x", signerAddr, req.StealthAddress)
	}
	sig, err := payroll.SignClaim(domain, req, stealthKey.PrivateKey)
	if err != nil {
		return err
	}
	claim.Signature = "0x" + hex.EncodeToString(sig)
	if err := claimfile.WriteJSON(outPath, claim); err != nil {
		return err
	}
	fmt.Printf("Signed claim for 0x%x (chain %d), wrote %s\n", req.StealthAddress, cfg.ChainID, outPath)
	return nil
}
