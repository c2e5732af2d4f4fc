package service

import (
	"context"
	"encoding/json"

	"github.com/c360/frontgate/errors"
	"github.com/c360/frontgate/manifest"
)

// agentInfoPath is the conventional identity route every component exposes.
const agentInfoPath = "/api/agent-info"

// AgentInfo is the payload of the agent-info route. Address fields are null
// until the corresponding surface is known.
type AgentInfo struct {
	ServiceID    *string `json:"service-id"`
	SafeAddress  *string `json:"safe-address"`
	AgentAddress *string `json:"agent-address"`
	AgentStatus  *string `json:"agent-status"`
}

// registerAgentInfo binds the conventional agent-info handler when the
// component's API specification declares the route and no handler claimed
// its operation id already.
func (h *Host) registerAgentInfo(spec *manifest.APISpec) error {
	op, declared := spec.Lookup("GET", agentInfoPath)
	if !declared {
		return nil
	}
	if _, bound := h.handlers.Lookup(op.OperationID); bound {
		return nil
	}

	handler := func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		info := h.agentInfo()
		data, err := json.Marshal(info)
		if err != nil {
			return nil, errors.Wrap(err, "Host", "agentInfo", "marshal agent info")
		}
		return data, nil
	}

	return h.handlers.Register(op.OperationID, handler)
}

// agentInfo snapshots the current component identity.
func (h *Host) agentInfo() AgentInfo {
	info := AgentInfo{}

	h.mu.RLock()
	if h.manifest != nil {
		id := h.manifest.Name
		info.ServiceID = &id
	}
	gw := h.gateway
	h.mu.RUnlock()

	if gw != nil {
		if addr := gw.Addr(); addr != "" {
			info.AgentAddress = &addr
		}
	}

	status := h.lifecycle.Round().String()
	info.AgentStatus = &status

	return info
}
