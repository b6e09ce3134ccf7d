package nodes

import (
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// CapabilityVersion changes whenever a tool is added or a mutation widens.
// Every new destructive operation needs a confirmation policy before it lands here.
const CapabilityVersion = 1

// Operation is a CRUD verb a table allows
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Field is one tool parameter
type Field struct {
	Name string
	Type schema.DataType
	Desc string
}

// Capability is the static entry for one CRM table
type Capability struct {
	Table      string
	Entity     string
	Operations []Operation
	Required   []string // create only
	Fields     []Field
}

func strField(name, desc string) Field { return Field{Name: name, Type: schema.String, Desc: desc} }
func intField(name, desc string) Field { return Field{Name: name, Type: schema.Integer, Desc: desc} }
func numField(name, desc string) Field { return Field{Name: name, Type: schema.Number, Desc: desc} }

var crud = []Operation{OpCreate, OpRead, OpUpdate, OpDelete}

var capabilities = []Capability{
	{Table: "leads", Entity: "lead", Operations: crud, Required: []string{"name", "phone"}, Fields: []Field{
		strField("name", "Full name of the lead"),
		strField("email", "Email address"),
		strField("phone", "Phone number"),
		strField("lead_status", "One of 'Not Contacted', 'Contacted', 'Qualified'"),
		strField("lead_stage", "Pipeline stage"),
		strField("opportunity_status", "One of 'Visiting', 'Enrolled', 'Dropped'"),
		strField("lead_source", "Where the lead came from"),
		strField("lead_owner", "Admin responsible for the lead"),
		intField("fee_quoted", "Quoted fee"),
		strField("next_follow_up", "Next follow-up time, ISO 8601"),
		strField("description", "Free-form notes"),
	}},
	{Table: "campaigns", Entity: "campaign", Operations: crud, Required: []string{"name", "status", "type"}, Fields: []Field{
		strField("name", "Campaign name"),
		strField("status", "Campaign status"),
		strField("type", "Campaign type, for example 'Email' or 'Social'"),
		strField("campaign_owner", "Owner of the campaign"),
		strField("phone", "Contact phone"),
		strField("start_date", "Start date, ISO 8601"),
		strField("end_date", "End date, ISO 8601"),
		numField("budget", "Budget amount"),
	}},
	{Table: "tasks", Entity: "task", Operations: crud, Required: []string{"subject", "priority", "status"}, Fields: []Field{
		strField("subject", "Task subject"),
		strField("priority", "One of 'Low', 'Medium', 'High'"),
		strField("status", "Task status"),
		strField("task_type", "Kind of task"),
		strField("due_date", "Due date, ISO 8601"),
		intField("lead_id", "Related lead id"),
	}},
	{Table: "trainers", Entity: "trainer", Operations: crud, Required: []string{"trainer_name", "email", "trainer_status"}, Fields: []Field{
		strField("trainer_name", "Trainer name"),
		strField("email", "Email address"),
		strField("phone", "Phone number"),
		strField("trainer_status", "Trainer status"),
		strField("tech_stack", "Technologies taught"),
		strField("location", "Location"),
	}},
	{Table: "learners", Entity: "learner", Operations: crud, Required: []string{"name", "phone"}, Fields: []Field{
		strField("name", "Learner name"),
		strField("email", "Email address"),
		strField("phone", "Phone number"),
		strField("status", "Learner status"),
		strField("course", "Enrolled course"),
		strField("location", "Location"),
		strField("source", "Where the learner came from"),
	}},
	{Table: "courses", Entity: "course", Operations: crud, Required: []string{"title", "description"}, Fields: []Field{
		strField("title", "Course title"),
		strField("description", "Course description"),
		strField("trainer", "Trainer name"),
		strField("duration", "Course duration"),
		numField("fee", "Course fee"),
	}},
	{Table: "activity", Entity: "activity", Operations: crud, Required: []string{"activity_name"}, Fields: []Field{
		strField("activity_name", "Activity name"),
		strField("description", "What happened"),
		intField("lead_id", "Related lead id"),
	}},
	{Table: "notes", Entity: "note", Operations: crud, Required: []string{"content"}, Fields: []Field{
		strField("content", "Note text"),
		intField("lead_id", "Related lead id"),
	}},
	{Table: "batches", Entity: "batch", Operations: crud, Required: []string{"batch_name"}, Fields: []Field{
		strField("batch_name", "Batch name"),
		strField("batch_status", "Batch status"),
		strField("location", "Location"),
		strField("stack", "Technology stack"),
		strField("start_date", "Start date, ISO 8601"),
	}},
	{Table: "emails", Entity: "email", Operations: crud, Required: []string{"to", "from", "subject"}, Fields: []Field{
		strField("to", "Recipient address"),
		strField("from", "Sender address"),
		strField("subject", "Subject line"),
		strField("body", "Message body"),
		intField("lead_id", "Related lead id"),
	}},
	{Table: "calls", Entity: "call", Operations: crud, Required: []string{"status", "direction"}, Fields: []Field{
		strField("status", "Call outcome, for example 'answered' or 'missed'"),
		strField("direction", "One of 'inbound', 'outbound'"),
		strField("caller_id", "Caller number"),
		strField("time", "Call time, ISO 8601"),
		intField("duration", "Duration in seconds"),
		intField("lead_id", "Related lead id"),
	}},
	{Table: "meetings", Entity: "meeting", Operations: crud, Required: []string{"meeting_name", "start_time"}, Fields: []Field{
		strField("meeting_name", "Meeting title"),
		strField("start_time", "Start time, ISO 8601"),
		strField("end_time", "End time, ISO 8601"),
		strField("location", "Location or link"),
		intField("lead_id", "Related lead id"),
	}},
	{Table: "messages", Entity: "message", Operations: crud, Required: []string{"content", "status"}, Fields: []Field{
		strField("subject", "Subject"),
		strField("content", "Message text"),
		strField("status", "Delivery status"),
		intField("lead_id", "Related lead id"),
	}},
}

// Tool is a resolved tool name
type Tool struct {
	Name       string
	Operation  Operation
	Capability *Capability
}

// IDParam is the single-record id argument of update and delete tools
func (t Tool) IDParam() string { return t.Capability.Entity + "_id" }

// IDsParam is the bulk id argument of update and delete tools
func (t Tool) IDsParam() string { return t.Capability.Entity + "_ids" }

// Allows reports whether the table permits the operation
func (c *Capability) Allows(op Operation) bool {
	for _, o := range c.Operations {
		if o == op {
			return true
		}
	}
	return false
}

func (c *Capability) field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CapabilityFor returns the entry of an allow-listed table
func CapabilityFor(table string) (*Capability, bool) {
	for i := range capabilities {
		if capabilities[i].Table == table {
			return &capabilities[i], true
		}
	}
	return nil, false
}

// CapabilityForEntity returns the entry for an entity name such as "lead"
func CapabilityForEntity(entity string) (*Capability, bool) {
	for i := range capabilities {
		if capabilities[i].Entity == entity {
			return &capabilities[i], true
		}
	}
	return nil, false
}

// LookupTool parses "<op>_<entity>" against the capability table
func LookupTool(name string) (Tool, bool) {
	op, entity, ok := strings.Cut(name, "_")
	if !ok {
		return Tool{}, false
	}
	c, found := CapabilityForEntity(entity)
	if !found || !c.Allows(Operation(op)) || Operation(op) == OpRead {
		return Tool{}, false
	}
	return Tool{Name: name, Operation: Operation(op), Capability: c}, true
}

// ToolInfos is the tool schema bound to the model, sorted by name
func ToolInfos() []*schema.ToolInfo {
	var infos []*schema.ToolInfo
	for i := range capabilities {
		c := &capabilities[i]
		if c.Allows(OpCreate) {
			infos = append(infos, createTool(c))
		}
		if c.Allows(OpUpdate) {
			infos = append(infos, updateTool(c))
		}
		if c.Allows(OpDelete) {
			infos = append(infos, deleteTool(c))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func params(c *Capability, required map[string]bool) map[string]*schema.ParameterInfo {
	out := make(map[string]*schema.ParameterInfo, len(c.Fields))
	for _, f := range c.Fields {
		out[f.Name] = &schema.ParameterInfo{Type: f.Type, Desc: f.Desc, Required: required[f.Name]}
	}
	return out
}

func idParams(c *Capability, out map[string]*schema.ParameterInfo) {
	out[c.Entity+"_id"] = &schema.ParameterInfo{Type: schema.Integer, Desc: "Id of the " + c.Entity}
	out[c.Entity+"_ids"] = &schema.ParameterInfo{
		Type:     schema.Array,
		Desc:     "Ids for a bulk change of several " + c.Entity + " records",
		ElemInfo: &schema.ParameterInfo{Type: schema.Integer},
	}
}

func createTool(c *Capability) *schema.ToolInfo {
	required := map[string]bool{}
	for _, r := range c.Required {
		required[r] = true
	}
	return &schema.ToolInfo{
		Name:        "create_" + c.Entity,
		Desc:        "Create a new " + c.Entity + " record. Required: " + strings.Join(c.Required, ", "),
		ParamsOneOf: schema.NewParamsOneOfByParams(params(c, required)),
	}
}

func updateTool(c *Capability) *schema.ToolInfo {
	p := params(c, nil)
	idParams(c, p)
	return &schema.ToolInfo{
		Name:        "update_" + c.Entity,
		Desc:        "Update fields of an existing " + c.Entity + " identified by " + c.Entity + "_id, or several by " + c.Entity + "_ids",
		ParamsOneOf: schema.NewParamsOneOfByParams(p),
	}
}

func deleteTool(c *Capability) *schema.ToolInfo {
	p := map[string]*schema.ParameterInfo{}
	idParams(c, p)
	return &schema.ToolInfo{
		Name:        "delete_" + c.Entity,
		Desc:        "Delete a " + c.Entity + " record. The admin must confirm before it runs.",
		ParamsOneOf: schema.NewParamsOneOfByParams(p),
	}
}
