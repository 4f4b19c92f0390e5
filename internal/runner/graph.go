package runner

import (
	"github.com/emicklei/dot"
	"github.com/metal-toolbox/osie-runner/internal/model"
)

// Graph returns the reconciliation flow for a desired state document.
func Graph() *dot.Graph {
	g := dot.NewGraph(dot.Directed)

	connect := g.Node("Connect")
	wipe := g.Node("Wipe")
	next := g.Node("Next")
	exit := g.Node("Exit")
	fatal := g.Node("Fatal")

	preinstalling := g.Node(string(model.StatePreinstalling))
	provisioning := g.Node(string(model.StateProvisioning))
	checkEnv := g.Node(string(model.StateCheckEnv))
	install := g.Node("Install")

	g.Edge(connect, wipe, "Initial document")
	g.Edge(wipe, fatal, "Wipe failed")
	g.Edge(wipe, preinstalling, "state: preinstalling")
	g.Edge(wipe, provisioning, "state: provisioning")
	g.Edge(next, preinstalling, "state: preinstalling")
	g.Edge(next, provisioning, "state: provisioning")
	g.Edge(next, next, "Unknown state")

	g.Edge(preinstalling, next, "Preinstall image installed")
	g.Edge(preinstalling, fatal, "Installer failed")

	g.Edge(provisioning, next, "No instance, network not ready")
	g.Edge(provisioning, exit, "Custom osie")
	g.Edge(provisioning, checkEnv, "Preinstall mismatch")
	g.Edge(provisioning, install, "Preinstall matches")

	g.Edge(checkEnv, exit, "Check failed, loop.sh")
	g.Edge(checkEnv, install, "Check passed")

	g.Edge(install, fatal, "Installer failed")
	g.Edge(install, exit, "cleanup.sh")
	g.Edge(install, next, "Installed")

	return g
}
