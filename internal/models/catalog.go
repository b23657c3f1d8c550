package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spboyer/servicecounter/internal/utils"
)

// Indicator is a named scoring criterion used by the final review.
type Indicator struct {
	Name       string `yaml:"name" json:"name"`
	Definition string `yaml:"definition" json:"definition"`
}

// JobDescription describes the workplace the counter is staffed in.
type JobDescription struct {
	Workplace     string      `yaml:"workplace" json:"workplace"`
	JobType       string      `yaml:"job_type" json:"job_type"`
	Language      string      `yaml:"language,omitempty" json:"language,omitempty"`
	Indicators    []Indicator `yaml:"indicators" json:"indicators"`
	Collaborators []string    `yaml:"collaborators,omitempty" json:"collaborators,omitempty"`
}

// IndicatorNames returns the indicator names in declaration order.
func (j *JobDescription) IndicatorNames() []string {
	names := make([]string, 0, len(j.Indicators))
	for _, ind := range j.Indicators {
		names = append(names, ind.Name)
	}
	return names
}

// Validate checks the semantic rules a schema can't express.
func (j *JobDescription) Validate() error {
	if strings.TrimSpace(j.Workplace) == "" {
		return errors.New("workplace is required")
	}
	if strings.TrimSpace(j.JobType) == "" {
		return errors.New("job_type is required")
	}
	if len(j.Indicators) == 0 {
		return errors.New("at least one indicator is required")
	}

	seen := map[string]bool{}
	for i, ind := range j.Indicators {
		name := strings.TrimSpace(ind.Name)
		if name == "" {
			return fmt.Errorf("indicators[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("indicators[%d]: duplicate indicator name %q", i, name)
		}
		seen[name] = true
	}

	for _, c := range j.Collaborators {
		if target, ok := ParseDelegationTarget(c); !ok || target == DelegateNone {
			return fmt.Errorf("unknown collaborator %q (expected broker or reviewer)", c)
		}
	}
	return nil
}

// LoadJobDescription reads a job description from a YAML (or JSON) file.
func LoadJobDescription(path string) (*JobDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var job JobDescription
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job description %s: %w", path, err)
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job description %s: %w", path, err)
	}

	if len(job.Collaborators) == 0 {
		job.Collaborators = []string{string(RoleBroker), string(RoleReviewer)}
	}
	return &job, nil
}

// Task is one entry of the task catalog.
type Task struct {
	ID      int    `yaml:"-" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Content string `yaml:"content" json:"content"`
	// Reference is the path of the reference artifact submissions are compared against.
	Reference string `yaml:"reference,omitempty" json:"reference,omitempty"`
}

// TaskCatalog maps task identifiers to their definitions. It is loaded once
// before a session starts and never modified afterwards.
type TaskCatalog struct {
	tasks map[int]Task
}

// NewTaskCatalog builds a catalog from tasks. IDs must be positive and unique.
func NewTaskCatalog(tasks ...Task) (*TaskCatalog, error) {
	c := &TaskCatalog{tasks: make(map[int]Task, len(tasks))}
	for _, t := range tasks {
		if t.ID <= 0 {
			return nil, fmt.Errorf("task %q: id must be a positive integer, got %d", t.Name, t.ID)
		}
		if _, dup := c.tasks[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %d", t.ID)
		}
		c.tasks[t.ID] = t
	}
	return c, nil
}

// Lookup returns the task with the given id.
func (c *TaskCatalog) Lookup(id int) (Task, bool) {
	if c == nil {
		return Task{}, false
	}
	t, ok := c.tasks[id]
	return t, ok
}

// Len returns the number of tasks.
func (c *TaskCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tasks)
}

// Tasks returns all tasks ordered by id.
func (c *TaskCatalog) Tasks() []Task {
	if c == nil {
		return nil
	}
	out := make([]Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// taskCatalogFile is the on-disk layout: tasks keyed by their numeric id.
type taskCatalogFile struct {
	Tasks map[string]Task `yaml:"tasks"`
}

// LoadTaskCatalog reads a task catalog from a YAML (or JSON) file. Relative
// reference paths are resolved against the catalog's directory.
func LoadTaskCatalog(path string) (*TaskCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file taskCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing task catalog %s: %w", path, err)
	}

	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("task catalog %s has no tasks", path)
	}

	baseDir := filepath.Dir(path)
	tasks := make([]Task, 0, len(file.Tasks))
	for key, t := range file.Tasks {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("invalid task catalog %s: task id %q is not an integer", path, key)
		}
		t.ID = id
		t.Reference = utils.ResolvePath(t.Reference, baseDir)
		tasks = append(tasks, t)
	}

	catalog, err := NewTaskCatalog(tasks...)
	if err != nil {
		return nil, fmt.Errorf("invalid task catalog %s: %w", path, err)
	}
	return catalog, nil
}
