//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the checkout API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <book_id> <user1_id> [user2_id ...]
//
// Or use the convenience environment variables:
//
//	BOOK_ID=<id>  USER_IDS=<id1>,<id2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per user) all attempting to check out the same book simultaneously.
//  2. Counts 201 Created against 409 Conflict responses.
//  3. Fails if more than one request was granted the book.
//
// Prerequisites:
//   - Server must be running with the book available.
//   - The users must exist.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type checkoutResult struct {
	UserID     uint64
	StatusCode int
	DueDate    string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	// Collect book_id and user_ids from cli args or env.
	bookArg := os.Getenv("BOOK_ID")
	var userArgs []string
	if v := os.Getenv("USER_IDS"); v != "" {
		userArgs = strings.Split(v, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		bookArg = args[0]
	}
	if len(args) >= 2 {
		userArgs = args[1:]
	}

	if bookArg == "" || len(userArgs) == 0 {
		log.Fatal("Usage: BOOK_ID=<id> USER_IDS=<u1,u2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <book_id> <user1_id> [user2_id ...]")
	}
	bookID, err := strconv.ParseUint(bookArg, 10, 64)
	if err != nil {
		log.Fatalf("invalid book id %q", bookArg)
	}
	userIDs := make([]uint64, 0, len(userArgs))
	for _, a := range userArgs {
		id, err := strconv.ParseUint(strings.TrimSpace(a), 10, 64)
		if err != nil {
			log.Fatalf("invalid user id %q", a)
		}
		userIDs = append(userIDs, id)
	}

	fmt.Printf("=== Checkout Concurrency Test ===\n")
	fmt.Printf("Server : %s\n", serverAddr)
	fmt.Printf("Book   : %d\n", bookID)
	fmt.Printf("Users  : %d\n\n", len(userIDs))

	results := make([]checkoutResult, len(userIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, uid := range userIDs {
		wg.Add(1)
		go func(idx int, userID uint64) {
			defer wg.Done()
			<-start
			results[idx] = attemptCheckout(serverAddr, bookID, userID)
		}(i, uid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var granted, conflicts, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] user=%-8d err=%v\n", r.UserID, r.Err)
		case r.StatusCode == http.StatusCreated:
			granted++
			fmt.Printf("  [GRNT] user=%-8d due=%s\n", r.UserID, r.DueDate)
		case r.StatusCode == http.StatusConflict:
			conflicts++
			fmt.Printf("  [CONF] user=%-8d due=%s\n", r.UserID, r.DueDate)
		default:
			failures++
			fmt.Printf("  [FAIL] user=%-8d status=%d\n", r.UserID, r.StatusCode)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Granted   : %d\n", granted)
	fmt.Printf("Conflicts : %d\n", conflicts)
	fmt.Printf("Failures  : %d\n", failures)
	fmt.Printf("Total     : %d\n\n", len(userIDs))

	if granted > 1 {
		fmt.Printf("[FAIL] book %d was checked out %d times\n", bookID, granted)
		os.Exit(1)
	}
	if failures > 0 {
		fmt.Printf("[WARNING] %d request(s) failed, check server logs for details.\n", failures)
		os.Exit(1)
	}
	fmt.Println("[OK] at most one checkout was granted")
}

// attemptCheckout sends POST /api/checkouts for the given user.
func attemptCheckout(serverAddr string, bookID, userID uint64) checkoutResult {
	body, _ := json.Marshal(map[string]uint64{"book_id": bookID, "user_id": userID})

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serverAddr+"/api/checkouts", "application/json", bytes.NewReader(body))
	if err != nil {
		return checkoutResult{UserID: userID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed struct {
		DueDate string `json:"due_date"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return checkoutResult{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	return checkoutResult{UserID: userID, StatusCode: resp.StatusCode, DueDate: parsed.DueDate}
}
