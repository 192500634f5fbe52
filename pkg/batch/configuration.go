package batch

import (
	"encoding/json"
	"fmt"
)

// DeploymentMapping states that a contiguous run of Count target ids belongs
// to one deployment. Mappings partition the id list in order: the first
// mapping covers the first Count ids, the next mapping the following ones.
type DeploymentMapping struct {
	DeploymentID string `json:"deploymentId"`
	Count        int    `json:"count"`
}

// DeploymentMappings is the ordered partition of a batch's remaining ids by
// deployment. The sum of all counts always equals the number of unconsumed
// ids.
type DeploymentMappings []DeploymentMapping

// TotalCount returns the number of ids the mappings account for.
func (m DeploymentMappings) TotalCount() int {
	total := 0
	for _, e := range m {
		total += e.Count
	}
	return total
}

// Split severs the first n ids from the partition and returns the mapping
// for the consumed head and the mapping for the remaining tail. A mapping
// straddling the cut appears in both halves with adjusted counts; exhausted
// entries are dropped.
func (m DeploymentMappings) Split(n int) (head, tail DeploymentMappings) {
	for _, e := range m {
		switch {
		case n >= e.Count:
			head = append(head, e)
			n -= e.Count
		case n > 0:
			head = append(head, DeploymentMapping{DeploymentID: e.DeploymentID, Count: n})
			tail = append(tail, DeploymentMapping{DeploymentID: e.DeploymentID, Count: e.Count - n})
			n = 0
		default:
			tail = append(tail, e)
		}
	}
	return head, tail
}

// RemoveIDs returns the partition after the first n ids were consumed.
func (m DeploymentMappings) RemoveIDs(n int) DeploymentMappings {
	_, tail := m.Split(n)
	return tail
}

// Configuration is the serialized payload of a batch: the unconsumed target
// ids, optionally partitioned by deployment, plus the owning batch id merged
// into the same JSON object. Handler-specific parameters live in types that
// embed Configuration.
type Configuration struct {
	BatchID            string             `json:"batchId,omitempty"`
	IDs                []string           `json:"ids"`
	DeploymentMappings DeploymentMappings `json:"idMappings,omitempty"`
}

// ToCanonicalString renders the configuration as its persisted JSON form.
func (c *Configuration) ToCanonicalString() string {
	return marshalConfiguration(c)
}

func (c *Configuration) base() *Configuration { return c }

func (c *Configuration) chunk(ids []string, mappings DeploymentMappings) Payload {
	return &Configuration{BatchID: c.BatchID, IDs: ids, DeploymentMappings: mappings}
}

func marshalConfiguration(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		// Only unmarshalable field types can trip this, which is a
		// programming error in the configuration struct itself.
		panic(fmt.Sprintf("batchjobs: marshal batch configuration: %v", err))
	}
	return string(raw)
}
