// Package wizard scaffolds the job description and task catalog a counter
// session needs.
package wizard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/spboyer/servicecounter/internal/models"
)

// Scaffold holds everything collected by the wizard.
type Scaffold struct {
	Job   models.JobDescription
	Tasks []models.Task
}

// Defaults returns a small but complete scaffold for a municipal office.
func Defaults() *Scaffold {
	return &Scaffold{
		Job: models.JobDescription{
			Workplace: "City Hall",
			JobType:   "Resident Services",
			Language:  "English",
			Indicators: []models.Indicator{
				{Name: "accuracy", Definition: "The counter gave correct information about procedures."},
				{Name: "courtesy", Definition: "The counter was polite and patient with the customer."},
			},
			Collaborators: []string{string(models.RoleBroker), string(models.RoleReviewer)},
		},
		Tasks: []models.Task{
			{ID: 1, Name: "Residence certificate", Content: "Issue a certificate of residence."},
			{ID: 2, Name: "Moving notification", Content: "Register a change of address.", Reference: "references/moving-form.png"},
		},
	}
}

// RunJobWizard asks for the job description and a first task. Values in
// initial pre-populate the form.
func RunJobWizard(in io.Reader, out io.Writer, initial *Scaffold) (*Scaffold, error) {
	if initial == nil {
		initial = Defaults()
	}

	var (
		workplace     = initial.Job.Workplace
		jobType       = initial.Job.JobType
		language      = initial.Job.Language
		indicatorsRaw = formatIndicators(initial.Job.Indicators)
		collaborators = append([]string(nil), initial.Job.Collaborators...)
		taskName      string
		taskContent   string
		taskReference string
	)
	if len(initial.Tasks) > 0 {
		taskName = initial.Tasks[0].Name
		taskContent = initial.Tasks[0].Content
		taskReference = initial.Tasks[0].Reference
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workplace").
				Description("Where is the counter staffed?").
				Value(&workplace).
				Validate(required("workplace")),
			huh.NewInput().
				Title("Job type").
				Description("The counter's role at the workplace").
				Value(&jobType).
				Validate(required("job type")),
			huh.NewInput().
				Title("Language").
				Description("Language replies default to").
				Value(&language),
			huh.NewInput().
				Title("Review indicators").
				Description("Semicolon-separated name: definition pairs").
				Placeholder("accuracy: correct information; courtesy: polite").
				Value(&indicatorsRaw).
				Validate(func(s string) error {
					_, err := parseIndicators(s)
					return err
				}),
			huh.NewMultiSelect[string]().
				Title("Collaborators").
				Description("Who the counter may delegate to").
				Options(
					huh.NewOption("broker (task classification)", string(models.RoleBroker)),
					huh.NewOption("reviewer (document review)", string(models.RoleReviewer)),
				).
				Value(&collaborators),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("First task").
				Description("Name of a procedure customers come for").
				Value(&taskName).
				Validate(required("task name")),
			huh.NewText().
				Title("Task description").
				Value(&taskContent),
			huh.NewInput().
				Title("Reference document").
				Description("Optional path of a correctly filled document").
				Value(&taskReference),
		),
	).
		WithInput(in).
		WithOutput(out)

	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	indicators, err := parseIndicators(indicatorsRaw)
	if err != nil {
		return nil, err
	}

	result := &Scaffold{
		Job: models.JobDescription{
			Workplace:     strings.TrimSpace(workplace),
			JobType:       strings.TrimSpace(jobType),
			Language:      strings.TrimSpace(language),
			Indicators:    indicators,
			Collaborators: collaborators,
		},
		Tasks: []models.Task{{
			ID:        1,
			Name:      strings.TrimSpace(taskName),
			Content:   strings.TrimSpace(taskContent),
			Reference: strings.TrimSpace(taskReference),
		}},
	}
	return result, nil
}

// GenerateJobYAML renders the job description document.
func GenerateJobYAML(s *Scaffold) ([]byte, error) {
	if err := s.Job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job description: %w", err)
	}
	return yaml.Marshal(s.Job)
}

// GenerateTasksYAML renders the task catalog document, keyed by task id.
func GenerateTasksYAML(s *Scaffold) ([]byte, error) {
	if len(s.Tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}
	doc := struct {
		Tasks map[string]models.Task `yaml:"tasks"`
	}{Tasks: make(map[string]models.Task, len(s.Tasks))}

	for _, t := range s.Tasks {
		if t.ID <= 0 {
			return nil, fmt.Errorf("task %q: id must be a positive integer", t.Name)
		}
		key := strconv.Itoa(t.ID)
		if _, dup := doc.Tasks[key]; dup {
			return nil, fmt.Errorf("duplicate task id %d", t.ID)
		}
		doc.Tasks[key] = t
	}
	return yaml.Marshal(doc)
}

// Write stores the scaffold as jobPath and tasksPath. Existing files are kept
// unless force is set.
func Write(s *Scaffold, jobPath, tasksPath string, force bool) error {
	job, err := GenerateJobYAML(s)
	if err != nil {
		return err
	}
	tasks, err := GenerateTasksYAML(s)
	if err != nil {
		return err
	}

	if !force {
		for _, p := range []string{jobPath, tasksPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
		}
	}

	for path, data := range map[string][]byte{jobPath: job, tasksPath: tasks} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func formatIndicators(indicators []models.Indicator) string {
	parts := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		parts = append(parts, ind.Name+": "+ind.Definition)
	}
	return strings.Join(parts, "; ")
}

// parseIndicators reads "name: definition; name: definition".
func parseIndicators(s string) ([]models.Indicator, error) {
	var out []models.Indicator
	for _, part := range splitAndTrim(s, ";") {
		name, def, _ := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("indicator %q has no name", part)
		}
		out = append(out, models.Indicator{Name: name, Definition: strings.TrimSpace(def)})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one indicator is required")
	}
	return out, nil
}

func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, p := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
