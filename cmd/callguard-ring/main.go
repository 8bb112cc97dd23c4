// ABOUTME: Simulator for the push transport — sends ring and cancel signals to callguardd.
// ABOUTME: Usage: callguard-ring ring [-room ID] [-caller NAME] | cancel -room ID [-call ID]

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/callguard/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: callguard-ring <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  ring     Send an incoming-call signal")
		fmt.Println("  cancel   Send a cancel signal for a room")
		fmt.Println("  active   List calls currently ringing")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "ring":
		err = runRing(os.Args[2:])
	case "cancel":
		err = runCancel(os.Args[2:])
	case "active":
		err = runActive(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRing(args []string) error {
	fs := flag.NewFlagSet("ring", flag.ExitOnError)
	callID := fs.String("call", "", "call ID (generated when empty)")
	roomID := fs.String("room", "", "room ID (generated when empty)")
	caller := fs.String("caller", "Test Caller", "caller display name")
	callType := fs.String("type", "voice", "call type: voice or video")
	repeat := fs.Int("repeat", 1, "send the same signal N times (duplicate delivery)")
	fs.Parse(args)

	cfg, err := Load(defaultConfigPath())
	if err != nil {
		return err
	}

	if *callID == "" {
		*callID = uuid.New().String()
	}
	if *roomID == "" {
		*roomID = uuid.New().String()
	}

	payload, err := json.Marshal(map[string]string{
		"callId":     *callID,
		"roomId":     *roomID,
		"callerId":   cfg.Device.ID,
		"callerName": *caller,
		"callType":   *callType,
	})
	if err != nil {
		return err
	}

	for i := 0; i < *repeat; i++ {
		body, err := post(cfg, "/v1/call", payload)
		if err != nil {
			return err
		}

		var resp struct {
			Processed bool   `json:"processed"`
			Status    string `json:"status"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		if resp.Processed {
			color.Green("✓ ring processed  call=%s room=%s status=%s", *callID, *roomID, resp.Status)
		} else {
			color.Yellow("✗ ghost call suppressed  call=%s room=%s", *callID, *roomID)
		}
	}
	return nil
}

func runCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	roomID := fs.String("room", "", "room ID (required)")
	callID := fs.String("call", "", "call ID (optional)")
	fs.Parse(args)

	if *roomID == "" {
		return fmt.Errorf("-room is required")
	}

	cfg, err := Load(defaultConfigPath())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"roomId": *roomID,
		"callId": *callID,
	})
	if err != nil {
		return err
	}

	if _, err := post(cfg, "/v1/cancel", payload); err != nil {
		return err
	}
	color.Green("✓ cancel sent  room=%s", *roomID)
	return nil
}

func runActive(args []string) error {
	cfg, err := Load(defaultConfigPath())
	if err != nil {
		return err
	}

	body, err := request(cfg, http.MethodGet, "/v1/calls/active", nil)
	if err != nil {
		return err
	}

	var resp struct {
		Calls []struct {
			CallID     string    `json:"callId"`
			RoomID     string    `json:"roomId"`
			ReceivedAt time.Time `json:"receivedAt"`
			Status     string    `json:"status"`
		} `json:"calls"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(resp.Calls) == 0 {
		color.HiBlack("no active calls")
		return nil
	}
	for _, call := range resp.Calls {
		fmt.Printf("%s  room=%s  status=%s  age=%s\n",
			call.CallID, call.RoomID, call.Status,
			time.Since(call.ReceivedAt).Round(time.Second))
	}
	return nil
}

func post(cfg *Config, path string, payload []byte) ([]byte, error) {
	return request(cfg, http.MethodPost, path, payload)
}

func request(cfg *Config, method, path string, payload []byte) ([]byte, error) {
	verifier := auth.NewJWTVerifier([]byte(cfg.Daemon.TokenSecret))
	token, err := verifier.Generate(cfg.Device.ID, 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, cfg.Daemon.URL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	return body, nil
}
