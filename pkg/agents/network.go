package agents

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandsops/strands/pkg/policy"
	"github.com/strandsops/strands/pkg/swarm"
)

// Prober checks whether a host:port endpoint is reachable.
type Prober func(ctx context.Context, endpoint string) error

// NetworkScannerAgent probes the endpoints handed to it and reports
// reachability as a RAW_DATA evidence item. The default prober dials TCP
// with a short per-endpoint timeout.
type NetworkScannerAgent struct {
	probe Prober
}

func NewNetworkScannerAgent(probe Prober) *NetworkScannerAgent {
	if probe == nil {
		probe = dialProbe
	}
	return &NetworkScannerAgent{probe: probe}
}

func (n *NetworkScannerAgent) ID() string      { return "networkscanner" }
func (n *NetworkScannerAgent) Version() string { return "1" }
func (n *NetworkScannerAgent) LogicHash() string {
	return policy.HashLogic("networkscanner:tcp-probe:v1")
}

func (n *NetworkScannerAgent) Execute(ctx context.Context, params map[string]any, stepID string) swarm.AgentExecution {
	exec := newExecution(n, stepID, params)

	endpoints, err := stringSlice(params, "endpoints")
	exec.FinishedAt = time.Now().UTC()
	if err != nil {
		exec.Error = swarm.NewExecError(swarm.ErrValidation, "endpoints: %v", err)
		return exec
	}
	if len(endpoints) == 0 {
		exec.Error = swarm.NewExecError(swarm.ErrValidation, "no endpoints to probe")
		return exec
	}

	unreachable := make([]string, 0)
	for _, ep := range endpoints {
		if err := n.probe(ctx, ep); err != nil {
			unreachable = append(unreachable, fmt.Sprintf("%s (%v)", ep, err))
		}
	}
	sort.Strings(unreachable)

	content := fmt.Sprintf("probed %d endpoints, all reachable", len(endpoints))
	conf := 0.9
	if len(unreachable) > 0 {
		content = fmt.Sprintf("probed %d endpoints, %d unreachable: %s",
			len(endpoints), len(unreachable), strings.Join(unreachable, "; "))
		conf = 0.85
	}

	exec.OutputEvidence = []swarm.Evidence{{
		EvidenceID:        uuid.NewString(),
		SourceExecutionID: exec.ExecutionID,
		AgentID:           n.ID(),
		Content:           content,
		Confidence:        conf,
		Type:              swarm.EvidenceRawData,
	}}
	exec.FinishedAt = time.Now().UTC()
	return exec
}

func dialProbe(ctx context.Context, endpoint string) error {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}
