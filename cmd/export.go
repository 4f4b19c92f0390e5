package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	sw "github.com/filanov/stateswitch"
	"github.com/metal-toolbox/osie-runner/internal/hegel"
	"github.com/metal-toolbox/osie-runner/internal/runner"
	"github.com/spf13/cobra"

	"github.com/emicklei/dot"
)

type exportFlags struct {
	connectionSM bool
	reconcileSM  bool
	json         bool
}

var (
	exportFlagSet = &exportFlags{}
)

var cmdExportStatemachine = &cobra.Command{
	Use:   "export-statemachine --connection|--reconcile [--json]",
	Short: "Export the hegel connection or reconciliation statemachine as a mermaid graph",
	Run: func(_ *cobra.Command, _ []string) {
		exportStatemachine()
	},
}

func asGraph(s *sw.StateMachineJSON) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	nodes := map[string]dot.Node{}

	for _, transition := range s.TransitionRules {
		_, exists := nodes[transition.DestinationState]
		if !exists {
			nodes[transition.DestinationState] = g.Node(transition.DestinationState)
		}

		for _, sourceState := range transition.SourceStates {
			_, exists := nodes[sourceState]
			if !exists {
				nodes[sourceState] = g.Node(sourceState)
			}

			g.Edge(nodes[sourceState], nodes[transition.DestinationState], transition.Name)
		}
	}

	return g
}

func connectionStatemachine() {
	j, err := hegel.ConnectionStateMachineJSON()
	if err != nil {
		log.Fatal(err)
	}

	if exportFlagSet.json {
		fmt.Println(string(j))
		os.Exit(0)
	}

	t := &sw.StateMachineJSON{}
	if err := json.Unmarshal(j, t); err != nil {
		log.Fatal(err)
	}

	fmt.Println(dot.MermaidGraph(asGraph(t), dot.MermaidTopDown))
}

func exportStatemachine() {
	if exportFlagSet.connectionSM {
		connectionStatemachine()

		return
	}

	if exportFlagSet.reconcileSM {
		fmt.Println(dot.MermaidGraph(runner.Graph(), dot.MermaidTopDown))

		return
	}

	log.Println("expected --connection OR --reconcile flag")
	os.Exit(1)
}

func init() {
	cmdExportStatemachine.PersistentFlags().BoolVarP(&exportFlagSet.connectionSM, "connection", "", false, "export the hegel connection statemachine")
	cmdExportStatemachine.PersistentFlags().BoolVarP(&exportFlagSet.reconcileSM, "reconcile", "", false, "export the reconciliation flow")
	cmdExportStatemachine.PersistentFlags().BoolVarP(&exportFlagSet.json, "json", "", false, "export the connection statemachine in the JSON format")

	rootCmd.AddCommand(cmdExportStatemachine)
}
