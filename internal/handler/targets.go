package handler

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/store"
)

// Targets describes the business tables handlers write to. The engine does
// not own these tables; it only reads and writes the columns named here.
type Targets struct {
	Projects ProjectTable `yaml:"projects"`
	Contacts ContactTable `yaml:"contacts"`
	Tasks    TaskTable    `yaml:"tasks"`
	Links    LinkTable    `yaml:"links"`
	// AllowedStatuses restricts status_change values. Empty allows any.
	AllowedStatuses []string `yaml:"allowed_statuses"`
}

// ProjectTable maps the projects table.
type ProjectTable struct {
	store.TableRef `yaml:",inline"`
	CodeColumn     string `yaml:"code_column"`
	FeeColumn      string `yaml:"fee_column"`
	StatusColumn   string `yaml:"status_column"`
}

// ContactTable maps the contacts table.
type ContactTable struct {
	store.TableRef `yaml:",inline"`
	NameColumn     string `yaml:"name_column"`
	EmailColumn    string `yaml:"email_column"`
	CompanyColumn  string `yaml:"company_column"`
	PhoneColumn    string `yaml:"phone_column"`
}

// TaskTable maps the tasks table.
type TaskTable struct {
	store.TableRef `yaml:",inline"`
	ProjectColumn  string `yaml:"project_column"`
	TitleColumn    string `yaml:"title_column"`
	DueColumn      string `yaml:"due_column"`
	AssigneeColumn string `yaml:"assignee_column"`
	StatusColumn   string `yaml:"status_column"`
	InitialStatus  string `yaml:"initial_status"`
}

// LinkTable maps the email → project link table.
type LinkTable struct {
	store.TableRef `yaml:",inline"`
	EmailColumn    string `yaml:"email_column"`
	ProjectColumn  string `yaml:"project_column"`
}

// DefaultTargets returns the built-in table layout.
func DefaultTargets() *Targets {
	return &Targets{
		Projects: ProjectTable{
			TableRef:     store.TableRef{Name: "projects", IDColumn: "id"},
			CodeColumn:   "project_code",
			FeeColumn:    "fee",
			StatusColumn: "status",
		},
		Contacts: ContactTable{
			TableRef:      store.TableRef{Name: "contacts", IDColumn: "id"},
			NameColumn:    "name",
			EmailColumn:   "email",
			CompanyColumn: "company",
			PhoneColumn:   "phone",
		},
		Tasks: TaskTable{
			TableRef:       store.TableRef{Name: "tasks", IDColumn: "id"},
			ProjectColumn:  "project_code",
			TitleColumn:    "title",
			DueColumn:      "due_date",
			AssigneeColumn: "assignee",
			StatusColumn:   "status",
			InitialStatus:  "open",
		},
		Links: LinkTable{
			TableRef:      store.TableRef{Name: "email_project_links", IDColumn: "id"},
			EmailColumn:   "email_id",
			ProjectColumn: "project_code",
		},
	}
}

// LoadTargets reads a targets file and fills anything it leaves out from
// DefaultTargets.
func LoadTargets(path string) (*Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "handler: read targets %s", path)
	}

	// The YAML has a top-level "targets" key
	var wrapper struct {
		Targets Targets `yaml:"targets"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "handler: parse targets")
	}

	t := &wrapper.Targets
	t.fillDefaults(DefaultTargets())
	return t, nil
}

func (t *Targets) fillDefaults(d *Targets) {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&t.Projects.Name, d.Projects.Name)
	def(&t.Projects.IDColumn, d.Projects.IDColumn)
	def(&t.Projects.CodeColumn, d.Projects.CodeColumn)
	def(&t.Projects.FeeColumn, d.Projects.FeeColumn)
	def(&t.Projects.StatusColumn, d.Projects.StatusColumn)

	def(&t.Contacts.Name, d.Contacts.Name)
	def(&t.Contacts.IDColumn, d.Contacts.IDColumn)
	def(&t.Contacts.NameColumn, d.Contacts.NameColumn)
	def(&t.Contacts.EmailColumn, d.Contacts.EmailColumn)
	def(&t.Contacts.CompanyColumn, d.Contacts.CompanyColumn)
	def(&t.Contacts.PhoneColumn, d.Contacts.PhoneColumn)

	def(&t.Tasks.Name, d.Tasks.Name)
	def(&t.Tasks.IDColumn, d.Tasks.IDColumn)
	def(&t.Tasks.ProjectColumn, d.Tasks.ProjectColumn)
	def(&t.Tasks.TitleColumn, d.Tasks.TitleColumn)
	def(&t.Tasks.DueColumn, d.Tasks.DueColumn)
	def(&t.Tasks.AssigneeColumn, d.Tasks.AssigneeColumn)
	def(&t.Tasks.StatusColumn, d.Tasks.StatusColumn)
	def(&t.Tasks.InitialStatus, d.Tasks.InitialStatus)

	def(&t.Links.Name, d.Links.Name)
	def(&t.Links.IDColumn, d.Links.IDColumn)
	def(&t.Links.EmailColumn, d.Links.EmailColumn)
	def(&t.Links.ProjectColumn, d.Links.ProjectColumn)
}

// Ref returns the table reference for a table name, so rollback can find
// the key column of a table recorded in a change record.
func (t *Targets) Ref(table string) store.TableRef {
	for _, ref := range []store.TableRef{t.Projects.TableRef, t.Contacts.TableRef, t.Tasks.TableRef, t.Links.TableRef} {
		if ref.Name == table {
			return ref
		}
	}
	return store.TableRef{Name: table}
}

// TableFor returns the business table a suggestion type writes to, or ""
// for types that write nothing.
func (t *Targets) TableFor(st model.SuggestionType) string {
	switch st {
	case model.TypeFeeChange, model.TypeStatusChange:
		return t.Projects.Name
	case model.TypeTaskCreation:
		return t.Tasks.Name
	case model.TypeContactCreation:
		return t.Contacts.Name
	case model.TypeLinkCreation:
		return t.Links.Name
	}
	return ""
}

// StatusAllowed reports whether status may be set by status_change.
func (t *Targets) StatusAllowed(status string) bool {
	if len(t.AllowedStatuses) == 0 {
		return true
	}
	for _, s := range t.AllowedStatuses {
		if s == status {
			return true
		}
	}
	return false
}
