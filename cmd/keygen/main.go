// Command keygen prints signing material for a consent ledger deployment:
// a secp256k1 key with its DID, a token secret, or a token credential minted
// with an existing secret for local testing.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"consent-ledger/internal/credential/issuer"
	"consent-ledger/internal/credential/models"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/identity"
	id "consent-ledger/pkg/domain"
	"consent-ledger/pkg/secrets"
)

type keyOutput struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
	DID        string `json:"did"`
}

type secretOutput struct {
	TokenSecret string `json:"token_secret"`
}

type tokenOutput struct {
	Token   string `json:"token"`
	Issuer  string `json:"issuer"`
	Subject string `json:"subject"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "keygen:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "key":
		return generateKey(out)
	case "secret":
		return generateSecret(out)
	case "token":
		return mintToken(args, out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func generateKey(out io.Writer) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	addr := identity.FromPublicKey(&key.PublicKey)
	return writeJSON(out, keyOutput{
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(key)),
		Address:    addr.String(),
		DID:        addr.DID(),
	})
}

func generateSecret(out io.Writer) error {
	secret, err := secrets.Generate()
	if err != nil {
		return err
	}
	return writeJSON(out, secretOutput{TokenSecret: secret})
}

func mintToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("TOKEN_SECRET"), "Token secret (defaults to TOKEN_SECRET)")
	issuerDID := fs.String("issuer", "", "Issuer DID placed in the token")
	subject := fs.String("subject", "", "Participant address")
	consentID := fs.Uint64("consent", 1, "Consent ID")
	studyID := fs.Uint64("study", 1, "Study ID")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" || *issuerDID == "" {
		return fmt.Errorf("token requires -secret and -issuer")
	}
	participant, err := identity.Parse(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}

	key, err := signer.NewTokenKey(*secret)
	if err != nil {
		return err
	}
	// The asymmetric signer is unused for tokens.
	unconfigured, _ := signer.New("")
	iss := issuer.New(unconfigured,
		issuer.WithTokenKey(key),
		issuer.WithTokenIssuer(*issuerDID),
		issuer.WithTokenTTL(*ttl),
	)
	cred, err := iss.IssueToken(context.Background(), issuer.IssueRequest{
		Subject:   participant,
		ConsentID: id.ConsentID(*consentID),
		StudyID:   id.StudyID(*studyID),
	})
	if err != nil {
		return err
	}
	proof, ok := cred.Proof.(*models.TokenProof)
	if !ok {
		return fmt.Errorf("unexpected proof type %T", cred.Proof)
	}
	return writeJSON(out, tokenOutput{Token: proof.JWT, Issuer: cred.Issuer, Subject: participant.DID()})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Usage: keygen <command> [flags]

Commands:
  key      Generate a secp256k1 signing key (SIGNER_PRIVATE_KEY) and its DID
  secret   Generate a random TOKEN_SECRET
  token    Mint a token credential: -secret -issuer -subject [-consent -study -ttl]`)
}
