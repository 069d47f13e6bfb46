package commands

import (
	"encoding/json"
	"fmt"

	"github.com/tuti-cli/tuti/pkg/utils"
)

// ServiceStatus is one service's observed runtime state, as reported by
// `compose ps`.
type ServiceStatus struct {
	Name   string
	Status string
	Ports  []string
	Health string
}

// Running reports whether the service's runtime state is "running".
func (s ServiceStatus) Running() bool { return s.Status == "running" }

// composePsRecord mirrors one line of `compose ps --format json` output.
type composePsRecord struct {
	Service    string `json:"Service"`
	Name       string `json:"Name"`
	State      string `json:"State"`
	Health     string `json:"Health"`
	Publishers []struct {
		PublishedPort int `json:"PublishedPort"`
		TargetPort    int `json:"TargetPort"`
	} `json:"Publishers"`
}

// parseComposeStatus decodes newline-delimited JSON from `compose ps`. Each
// line is decoded independently; empty or garbled lines are skipped so one
// bad record never loses the rest. Order is preserved as reported.
func parseComposeStatus(output string) []ServiceStatus {
	statuses := []ServiceStatus{}

	for _, line := range utils.SplitLines(output) {
		if line == "" {
			continue
		}

		record := composePsRecord{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}

		name := record.Service
		if name == "" {
			name = record.Name
		}

		health := record.Health
		if health == "" {
			health = "unknown"
		}

		ports := make([]string, 0, len(record.Publishers))
		for _, pub := range record.Publishers {
			ports = append(ports, fmt.Sprintf("%d:%d", pub.PublishedPort, pub.TargetPort))
		}

		statuses = append(statuses, ServiceStatus{
			Name:   name,
			Status: record.State,
			Ports:  ports,
			Health: health,
		})
	}

	return statuses
}
