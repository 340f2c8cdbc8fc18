package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	defaultRPC := strings.TrimSpace(os.Getenv("DEEDCHAIN_RPC_URL"))
	if defaultRPC == "" {
		defaultRPC = "http://127.0.0.1:8080/rpc"
	}
	defaultAuth := strings.TrimSpace(os.Getenv("DEEDCHAIN_RPC_TOKEN"))

	root := flag.NewFlagSet("deedchain-cli", flag.ExitOnError)
	rpcURL := root.String("rpc", defaultRPC, "JSON-RPC endpoint")
	authToken := root.String("auth", defaultAuth, "Bearer token for authenticated RPC calls")
	root.Parse(os.Args[1:])

	args := root.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage())
		os.Exit(1)
	}

	code := 0
	switch args[0] {
	case "get":
		code = runQuery(*rpcURL, *authToken, "escrow_get", args[1:])
	case "bids":
		code = runQuery(*rpcURL, *authToken, "escrow_getBids", args[1:])
	case "highest-bid":
		code = runQuery(*rpcURL, *authToken, "escrow_highestBid", args[1:])
	case "approvals":
		code = runQuery(*rpcURL, *authToken, "escrow_approvalStatus", args[1:])
	case "balance":
		code = runQuery(*rpcURL, *authToken, "escrow_propertyBalance", args[1:])
	case "list":
		code = runListCommand(*rpcURL, *authToken, args[1:])
	case "purchase":
		code = runValueCommand(*rpcURL, *authToken, "escrow_purchaseDirectly", args[1:])
	case "deposit":
		code = runValueCommand(*rpcURL, *authToken, "escrow_purchaseWithDeposit", args[1:])
	case "fund":
		code = runValueCommand(*rpcURL, *authToken, "escrow_fundByLender", args[1:])
	case "bid":
		code = runBidCommand(*rpcURL, *authToken, args[1:])
	case "inspect":
		code = runInspectCommand(*rpcURL, *authToken, args[1:])
	case "approve":
		code = runActorCommand(*rpcURL, *authToken, "escrow_approveSale", args[1:])
	case "finalize":
		code = runActorCommand(*rpcURL, *authToken, "escrow_finalizeSale", args[1:])
	case "cancel":
		code = runCancelCommand(*rpcURL, *authToken, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		fmt.Fprintln(os.Stderr, usage())
		code = 1
	}
	if code != 0 {
		os.Exit(code)
	}
}

func runQuery(rpcURL, auth, method string, args []string) int {
	fs := flag.NewFlagSet(method, flag.ExitOnError)
	id := fs.Uint64("id", 0, "property identifier")
	fs.Parse(args)
	return invoke(rpcURL, auth, method, map[string]interface{}{"id": *id})
}

func runListCommand(rpcURL, auth string, args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	caller := fs.String("caller", "", "seller address")
	id := fs.Uint64("id", 0, "deed token identifier")
	price := fs.String("price", "", "asking price in minor units")
	escrowAmount := fs.String("escrow", "", "earnest deposit in minor units")
	listingType := fs.String("type", "fixed_price", "fixed_price or auction")
	fs.Parse(args)
	if strings.TrimSpace(*caller) == "" || strings.TrimSpace(*price) == "" {
		fmt.Fprintln(os.Stderr, "--caller and --price are required")
		return 1
	}
	return invoke(rpcURL, auth, "escrow_list", map[string]interface{}{
		"caller":       *caller,
		"id":           *id,
		"price":        *price,
		"escrowAmount": *escrowAmount,
		"listingType":  *listingType,
	})
}

func runValueCommand(rpcURL, auth, method string, args []string) int {
	fs := flag.NewFlagSet(method, flag.ExitOnError)
	caller := fs.String("caller", "", "caller address")
	id := fs.Uint64("id", 0, "property identifier")
	value := fs.String("value", "", "attached value in minor units")
	fs.Parse(args)
	if strings.TrimSpace(*caller) == "" || strings.TrimSpace(*value) == "" {
		fmt.Fprintln(os.Stderr, "--caller and --value are required")
		return 1
	}
	return invoke(rpcURL, auth, method, map[string]interface{}{
		"caller": *caller,
		"id":     *id,
		"value":  *value,
	})
}

func runActorCommand(rpcURL, auth, method string, args []string) int {
	fs := flag.NewFlagSet(method, flag.ExitOnError)
	caller := fs.String("caller", "", "caller address")
	id := fs.Uint64("id", 0, "property identifier")
	fs.Parse(args)
	if strings.TrimSpace(*caller) == "" {
		fmt.Fprintln(os.Stderr, "--caller is required")
		return 1
	}
	return invoke(rpcURL, auth, method, map[string]interface{}{
		"caller": *caller,
		"id":     *id,
	})
}

func runBidCommand(rpcURL, auth string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bid <place|withdraw|accept> [options]")
		return 1
	}
	switch args[0] {
	case "place":
		fs := flag.NewFlagSet("bid place", flag.ExitOnError)
		caller := fs.String("caller", "", "bidder address")
		id := fs.Uint64("id", 0, "property identifier")
		amount := fs.String("amount", "", "declared bid in minor units")
		value := fs.String("value", "", "attached collateral in minor units")
		method := fs.String("method", "direct", "direct or deposit_and_lender")
		fs.Parse(args[1:])
		if strings.TrimSpace(*caller) == "" || strings.TrimSpace(*amount) == "" {
			fmt.Fprintln(os.Stderr, "--caller and --amount are required")
			return 1
		}
		return invoke(rpcURL, auth, "escrow_placeBid", map[string]interface{}{
			"caller": *caller,
			"id":     *id,
			"amount": *amount,
			"value":  *value,
			"method": *method,
		})
	case "withdraw":
		return runActorCommand(rpcURL, auth, "escrow_withdrawBid", args[1:])
	case "accept":
		fs := flag.NewFlagSet("bid accept", flag.ExitOnError)
		caller := fs.String("caller", "", "seller address")
		id := fs.Uint64("id", 0, "property identifier")
		bidder := fs.String("bidder", "", "winning bidder address")
		fs.Parse(args[1:])
		if strings.TrimSpace(*caller) == "" || strings.TrimSpace(*bidder) == "" {
			fmt.Fprintln(os.Stderr, "--caller and --bidder are required")
			return 1
		}
		return invoke(rpcURL, auth, "escrow_acceptBid", map[string]interface{}{
			"caller": *caller,
			"id":     *id,
			"bidder": *bidder,
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown bid command: %s\n", args[0])
		return 1
	}
}

func runInspectCommand(rpcURL, auth string, args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	caller := fs.String("caller", "", "inspector address")
	id := fs.Uint64("id", 0, "property identifier")
	passed := fs.Bool("passed", false, "inspection outcome")
	fs.Parse(args)
	if strings.TrimSpace(*caller) == "" {
		fmt.Fprintln(os.Stderr, "--caller is required")
		return 1
	}
	return invoke(rpcURL, auth, "escrow_updateInspection", map[string]interface{}{
		"caller": *caller,
		"id":     *id,
		"passed": *passed,
	})
}

func runCancelCommand(rpcURL, auth string, args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	caller := fs.String("caller", "", "buyer or seller address")
	id := fs.Uint64("id", 0, "property identifier")
	reason := fs.String("reason", "", "optional cancellation reason")
	fs.Parse(args)
	if strings.TrimSpace(*caller) == "" {
		fmt.Fprintln(os.Stderr, "--caller is required")
		return 1
	}
	return invoke(rpcURL, auth, "escrow_cancelSale", map[string]interface{}{
		"caller": *caller,
		"id":     *id,
		"reason": *reason,
	})
}

func invoke(rpcURL, auth, method string, params map[string]interface{}) int {
	result, rpcErr, err := callRPC(rpcURL, auth, method, []interface{}{params})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpc call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		printRPCError(rpcErr)
		return 1
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return 0
	}
	fmt.Println(pretty.String())
	return 0
}

func callRPC(rpcURL, authToken, method string, params []interface{}) (json.RawMessage, *rpcError, error) {
	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: int(time.Now().UnixNano())}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, rpcURL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(authToken) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(authToken))
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&rpcResp); decodeErr != nil {
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("rpc status %d: %s", resp.StatusCode, string(body))
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error, nil
	}
	return rpcResp.Result, nil, nil
}

func printRPCError(err *rpcError) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "rpc error %d: %s\n", err.Code, err.Message)
	if len(err.Data) > 0 {
		fmt.Fprintf(os.Stderr, "  %s\n", string(err.Data))
	}
}

func usage() string {
	return "deedchain-cli usage:\n  deedchain-cli [--rpc URL] [--auth TOKEN] <command> [options]\n\nCommands:\n  get --id N                       Show a property sale record\n  bids --id N                      List active bids\n  highest-bid --id N               Show the leading bid\n  approvals --id N                 Show approval status\n  balance --id N                   Show escrowed balance for a property\n  list --caller A --id N --price X --escrow Y [--type fixed_price|auction]\n  purchase --caller A --id N --value X     Buy a fixed-price listing outright\n  deposit --caller A --id N --value X      Enter a contract with an earnest deposit\n  fund --caller A --id N --value X         Lender funds the remaining price\n  bid place --caller A --id N --amount X --value Y [--method M]\n  bid withdraw --caller A --id N\n  bid accept --caller A --id N --bidder B\n  inspect --caller A --id N [--passed]     Record the inspection outcome\n  approve --caller A --id N                Approve the pending sale\n  finalize --caller A --id N               Settle and transfer the deed\n  cancel --caller A --id N [--reason R]    Cancel and refund\n"
}
