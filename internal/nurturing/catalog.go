package nurturing

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the set of nurturing plans loaded from YAML. It is read-only after load.
type Catalog struct {
	plans []Plan
	byID  map[string]*Plan
}

// Plan is an ordered sequence of automated messages.
type Plan struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Enabled  *bool     `yaml:"enabled"`
	Priority int       `yaml:"priority"`
	Match    PlanMatch `yaml:"match"`
	Steps    []Step    `yaml:"steps"`
}

// PlanMatch restricts a plan to leads with the given attributes. An empty list matches anything.
type PlanMatch struct {
	ProductIDs  []int64  `yaml:"productIds"`
	SourceIDs   []int64  `yaml:"sourceIds"`
	StatusCodes []string `yaml:"statusCodes"`
}

// Step is one message of a plan. DelayHours counts from lead creation for the
// first step and from the previous send afterwards.
type Step struct {
	Key        string `yaml:"key"`
	DelayHours int    `yaml:"delayHours"`
	Template   string `yaml:"template"`
}

// LeadAttributes are the lead fields used to select a plan.
type LeadAttributes struct {
	ProductID  *int64
	SourceID   *int64
	StatusCode string
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nurturing plans: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates and indexes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse nurturing plans: %w", err)
	}

	c := &Catalog{byID: make(map[string]*Plan, len(file.Plans))}
	seen := make(map[string]struct{}, len(file.Plans))
	for i := range file.Plans {
		p := file.Plans[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("nurturing plan #%d has no id", i+1)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate nurturing plan id %q", p.ID)
		}
		for j, s := range p.Steps {
			if s.DelayHours < 0 {
				return nil, fmt.Errorf("plan %q step %d: negative delay", p.ID, j)
			}
			if strings.TrimSpace(s.Template) == "" {
				return nil, fmt.Errorf("plan %q step %d: empty template", p.ID, j)
			}
			if s.Key == "" {
				p.Steps[j].Key = fmt.Sprintf("%s:%d", p.ID, j)
			}
		}
		seen[p.ID] = struct{}{}
		c.plans = append(c.plans, p)
	}

	// stable so equal priorities keep file order
	sort.SliceStable(c.plans, func(i, j int) bool { return c.plans[i].Priority > c.plans[j].Priority })
	for i := range c.plans {
		c.byID[c.plans[i].ID] = &c.plans[i]
	}
	return c, nil
}

// Len returns the number of plans.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.plans)
}

// PickPlanForLead returns the highest-priority enabled plan matching the lead.
func (c *Catalog) PickPlanForLead(attrs LeadAttributes) (string, bool) {
	if c == nil {
		return "", false
	}
	for i := range c.plans {
		p := &c.plans[i]
		if !p.enabled() || len(p.Steps) == 0 {
			continue
		}
		if p.Match.matches(attrs) {
			return p.ID, true
		}
	}
	return "", false
}

// FirstStepDelayHours returns the delay before the first message of a plan.
func (c *Catalog) FirstStepDelayHours(planID string) (int, bool) {
	step, ok := c.Step(planID, 0)
	if !ok {
		return 0, false
	}
	return step.DelayHours, true
}

// Step returns the step at index of planID.
func (c *Catalog) Step(planID string, index int) (Step, bool) {
	if c == nil || index < 0 {
		return Step{}, false
	}
	p, ok := c.byID[planID]
	if !ok || index >= len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[index], true
}

func (p *Plan) enabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func (m PlanMatch) matches(attrs LeadAttributes) bool {
	if len(m.ProductIDs) > 0 && (attrs.ProductID == nil || !containsID(m.ProductIDs, *attrs.ProductID)) {
		return false
	}
	if len(m.SourceIDs) > 0 && (attrs.SourceID == nil || !containsID(m.SourceIDs, *attrs.SourceID)) {
		return false
	}
	if len(m.StatusCodes) > 0 {
		found := false
		for _, code := range m.StatusCodes {
			if strings.EqualFold(code, attrs.StatusCode) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
