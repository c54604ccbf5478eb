// Arbiter - Confidence-Gated Action Approval Engine
//
// Decides whether a proposed automated security response executes
// immediately, waits for human sign-off, or is merely recorded.
package main

func main() {
	Execute()
}
