package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"skoll/internal/common"
	gateway "skoll/internal/net"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange gateway")
	account := flag.String("account", "", "Account identifier (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['register', 'deposit', 'withdraw', 'place']")

	// Order / transfer parameters
	symbol := flag.String("symbol", "tLINK", "Asset symbol (max 8 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	price := flag.Uint64("price", 0, "Limit price in native units per asset unit")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Register parameters
	handle := flag.String("handle", "", "External token handle (register only)")

	flag.Parse()

	// Validation
	if *account == "" {
		fmt.Println("Error: -account is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	// Connect to the gateway
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to gateway at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *account)

	// Prepare enums using the 'common' package
	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}

	kind := common.LimitOrder
	if strings.ToLower(*typeStr) == "market" {
		kind = common.MarketOrder
	}

	sym := common.NewSymbol(*symbol)
	owner := common.AccountID(*account)

	// Execute action
	switch strings.ToLower(*action) {
	case "register":
		msg := gateway.RegisterAssetMessage{
			Symbol: sym,
			Handle: common.TokenHandle(*handle),
			Caller: owner,
		}
		roundTrip(conn, mustEncode(msg), fmt.Sprintf("Register %s", sym))

	case "deposit", "withdraw":
		typeOf := gateway.Deposit
		if strings.ToLower(*action) == "withdraw" {
			typeOf = gateway.Withdraw
		}
		for _, q := range parseQuantities(*qtyStr) {
			msg := gateway.TransferMessage{
				BaseMessage: gateway.BaseMessage{TypeOf: typeOf},
				Symbol:      sym,
				Amount:      q,
				Account:     owner,
			}
			roundTrip(conn, mustEncode(msg), fmt.Sprintf("%s %d %s", *action, q, sym))
		}

	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			msg := gateway.NewOrderMessage{
				Kind:    kind,
				Side:    side,
				Symbol:  sym,
				Amount:  q,
				Price:   *price,
				Account: owner,
			}
			roundTrip(conn, mustEncode(msg),
				fmt.Sprintf("%s %s %d %s @ %d", *typeStr, *sideStr, q, sym, *price))
			// Small sleep so the gateway processes the sequence distinctly.
			time.Sleep(5 * time.Millisecond)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

// mustEncode serializes a message or exits; there is no recovering from a
// message the codec refuses.
func mustEncode(msg interface{ Encode() ([]byte, error) }) []byte {
	buf, err := msg.Encode()
	if err != nil {
		log.Fatalf("Failed to encode message: %v", err)
	}
	return buf
}

// parseQuantities splits a comma-separated string into a slice of uint64
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// roundTrip sends one encoded message and prints the gateway's report.
func roundTrip(conn net.Conn, msg []byte, desc string) {
	if _, err := conn.Write(msg); err != nil {
		log.Fatalf("Failed to send %s: %v", desc, err)
	}
	fmt.Printf("-> Sent: %s\n", desc)

	buf := make([]byte, 4*1024)
	n, err := conn.Read(buf)
	if err != nil {
		if err != io.EOF {
			log.Fatalf("Failed to read report: %v", err)
		}
		return
	}

	report, err := gateway.DecodeReport(buf[:n])
	if err != nil {
		log.Fatalf("Failed to decode report: %v", err)
	}

	switch {
	case !report.OK:
		fmt.Printf("<- Rejected: %s\n", report.Err)
	case report.OrderID != 0:
		fmt.Printf("<- Accepted: order id %d\n", report.OrderID)
	default:
		fmt.Printf("<- Accepted: filled %d\n", report.Filled)
	}
}
