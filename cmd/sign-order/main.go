package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/crypto"
	"github.com/uhyunpark/dexws/pkg/devserver"
	"github.com/uhyunpark/dexws/pkg/order"
)

// Usage: sign-order [MARKET AMOUNT RATE]
// A negative amount sells. The key comes from DEX_ACCOUNT, else a fresh one.
func main() {
	cfg := params.LoadFromEnv("")

	marketKey, amount, rate := "ENGETH", "30", "0.004"
	if len(os.Args) == 4 {
		marketKey, amount, rate = os.Args[1], os.Args[2], os.Args[3]
	} else if len(os.Args) != 1 {
		fmt.Println("usage: sign-order [MARKET AMOUNT RATE]")
		os.Exit(2)
	}

	// Step 1: Load or generate key
	var signer *crypto.Signer
	var err error
	if key := cfg.Client.SigningKey(); key != "" {
		signer, err = crypto.FromPrivateKeyHex(key)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address: %s\n\n", signer.Address().Hex())

	contract := cfg.Orders.ContractAddress
	if contract == "" {
		contract = devserver.DefaultContractAddress
	}

	// Step 2: Build and sign against the simulator listing
	b := &order.Builder{
		Snapshot:        devserver.DefaultListing().Snapshot(),
		Signer:          signer,
		ContractAddress: contract,
		DefaultExpiry:   cfg.Orders.DefaultExpiry,
	}
	canonical, err := b.Build(order.RawOrder{Market: marketKey, Amount: amount, Rate: rate})
	if err != nil {
		fmt.Printf("Error building order: %v\n", err)
		os.Exit(1)
	}

	orderJSON, err := json.MarshalIndent(canonical, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed Order (placeOrder parameters):")
	fmt.Println(string(orderJSON))
	fmt.Println()

	// Step 3: Verify signature
	hash, err := order.Hash(canonical, contract)
	if err != nil {
		fmt.Printf("Error hashing: %v\n", err)
		os.Exit(1)
	}
	sig, err := crypto.DecodeSignature(canonical.Signature)
	if err != nil {
		fmt.Printf("Error decoding signature: %v\n", err)
		os.Exit(1)
	}
	recovered, err := crypto.RecoverPersonal(hash.Bytes(), sig)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Order hash: %s\n", hash.Hex())
	fmt.Printf("Contract:   %s\n", contract)
	fmt.Printf("Signer:     %s (matches: %v)\n", recovered.Hex(), recovered == signer.Address())
}
