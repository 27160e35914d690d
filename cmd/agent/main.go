// Package main is the entry point for the SpotVortex HPA agent.
// The agent augments Kubernetes' native autoscaling with a rule-based score
// and an online-trained ML predictor to choose Deployment replica counts.
package main

import (
	"os"

	"github.com/pradeepsingh/spotvortex-hpa/cmd/agent/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
