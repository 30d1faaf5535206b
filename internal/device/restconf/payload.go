package restconf

import (
	"encoding/json"
	"strconv"

	"github.com/andywolf/mountrace/internal/device"
)

// nodeRequest is the body of a mount point PUT.
type nodeRequest struct {
	Node node `json:"network-topology:node"`
}

type node struct {
	NodeID            string `json:"network-topology:node-id"`
	Host              string `json:"cli-topology:host"`
	Port              string `json:"cli-topology:port"`
	TransportType     string `json:"cli-topology:transport-type"`
	DeviceType        string `json:"cli-topology:device-type"`
	DeviceVersion     string `json:"cli-topology:device-version"`
	Username          string `json:"cli-topology:username"`
	Password          string `json:"cli-topology:password"`
	Reconcile         bool   `json:"node-extension:reconcile"`
	JournalSize       int    `json:"cli-topology:journal-size"`
	DryRunJournalSize int    `json:"cli-topology:dry-run-journal-size"`
	KeepaliveTimeout  int    `json:"cli-topology:keepalive-timeout"`
}

func newNodeRequest(nodeID string, p device.MountParams) nodeRequest {
	return nodeRequest{Node: node{
		NodeID:            nodeID,
		Host:              p.Host,
		Port:              strconv.Itoa(p.Port),
		TransportType:     p.TransportType,
		DeviceType:        p.DeviceType,
		DeviceVersion:     p.DeviceVersion,
		Username:          p.Username,
		Password:          p.Password,
		Reconcile:         p.Reconcile,
		JournalSize:       p.JournalSize,
		DryRunJournalSize: p.DryRunJournalSize,
		KeepaliveTimeout:  p.KeepaliveTimeout,
	}}
}

// MountPayload renders the JSON body sent for a mount request.
func MountPayload(nodeID string, p device.MountParams) ([]byte, error) {
	return json.Marshal(newNodeRequest(nodeID, p))
}
