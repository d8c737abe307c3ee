package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/0gfoundation/airdrop-claimer/internal/workflow"
)

// prompt asks for the action and the thread count.
func prompt(in *bufio.Reader, out io.Writer) (string, int, error) {
	fmt.Fprint(out, "1. Claim\n2. Transfer\n")
	choice, err := readLine(in)
	if err != nil {
		return "", 0, err
	}
	var action string
	switch choice {
	case "1":
		action = workflow.ActionClaim
	case "2":
		action = workflow.ActionTransfer
	default:
		return "", 0, fmt.Errorf("unknown choice %q", choice)
	}

	fmt.Fprint(out, "Threads: ")
	raw, err := readLine(in)
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("threads must be a positive integer, got %q", raw)
	}
	return action, n, nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
