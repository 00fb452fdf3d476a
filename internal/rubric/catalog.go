// Package rubric defines the procedure rubrics evaluations are scored against.
package rubric

import "fmt"

// Step is a single scored step of a procedure.
type Step struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	GoalTime string `json:"goalTime"`
}

// Rubric describes one procedure: its ordered steps and the descriptor text
// shown for each case difficulty level (1-3).
type Rubric struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name"`
	Steps                  []Step         `json:"steps"`
	DifficultyDescriptions map[int]string `json:"difficultyDescriptions"`
}

// StepKeys returns the rubric's step keys in order.
func (r Rubric) StepKeys() []string {
	keys := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		keys = append(keys, s.Key)
	}
	return keys
}

// StepName returns the display name for a step key, or the key itself when
// the rubric does not define it.
func (r Rubric) StepName(key string) string {
	for _, s := range r.Steps {
		if s.Key == key {
			return s.Name
		}
	}
	return key
}

// Catalog resolves procedure rubrics by ID.
type Catalog interface {
	Get(id string) (Rubric, error)
	List() []Rubric
}

// ErrUnknownProcedure is returned when a rubric lookup fails.
type ErrUnknownProcedure struct {
	ID string
}

func (e *ErrUnknownProcedure) Error() string {
	return fmt.Sprintf("unknown procedure: %s", e.ID)
}

var standardDifficulty = map[int]string{
	1: "Low Difficulty: Primary, straightforward case with normal anatomy and no prior abdominal or pelvic surgeries. Minimal dissection required; no significant adhesions or anatomical distortion.",
	2: "Moderate Difficulty: Case involves mild to moderate adhesions or anatomical variation. May include BMI-related challenges, large hernias, or prior unrelated abdominal surgeries not directly affecting the operative field.",
	3: "High Difficulty: Redo or complex case with prior related surgeries (e.g., prior hernia repair, laparotomy). Significant adhesions, distorted anatomy, fibrosis, or other factors requiring advanced dissection and judgment.",
}

var appendicectomyDifficulty = map[int]string{
	1: "Low: Primary, straightforward case with normal anatomy",
	2: "Moderate: Mild adhesions or anatomical variation",
	3: "High: Dense adhesions, distorted anatomy, prior surgery, or perforated/complicated appendicitis",
}

var builtinRubrics = []Rubric{
	{
		ID:   "lap-inguinal-hernia-tep",
		Name: "Laparoscopic Inguinal Hernia Repair with Mesh (TEP)",
		Steps: []Step{
			{Key: "portPlacement", Name: "Port Placement and Creation of Preperitoneal Space", GoalTime: "15-30 minutes"},
			{Key: "herniaDissection", Name: "Hernia Sac Reduction and Dissection of Hernia Space", GoalTime: "15-30 minutes"},
			{Key: "meshPlacement", Name: "Mesh Placement", GoalTime: "10-15 minutes"},
			{Key: "portClosure", Name: "Port Closure", GoalTime: "5-10 minutes"},
			{Key: "skinClosure", Name: "Skin Closure", GoalTime: "2-5 minutes"},
		},
		DifficultyDescriptions: standardDifficulty,
	},
	{
		ID:   "lap-cholecystectomy",
		Name: "Laparoscopic Cholecystectomy",
		Steps: []Step{
			{Key: "portPlacement", Name: "Port Placement", GoalTime: "5-10 minutes"},
			{Key: "calotTriangleDissection", Name: "Dissection of Calot's Triangle", GoalTime: "10-25 minutes"},
			{Key: "cysticArteryDuctClipping", Name: "Clipping and division of Cystic Artery and Duct", GoalTime: "5-10 minutes"},
			{Key: "gallbladderDissection", Name: "Gallbladder Dissection of the Liver", GoalTime: "10-20 minutes"},
			{Key: "specimenRemoval", Name: "Specimen removal", GoalTime: "5-10 minutes"},
			{Key: "portClosure", Name: "Port Closure", GoalTime: "5-10 minutes"},
			{Key: "skinClosure", Name: "Skin Closure", GoalTime: "2-5 minutes"},
		},
		DifficultyDescriptions: standardDifficulty,
	},
	{
		ID:   "robotic-cholecystectomy",
		Name: "Robotic Cholecystectomy",
		Steps: []Step{
			{Key: "portPlacement", Name: "Port Placement", GoalTime: "5-10 minutes"},
			{Key: "calotTriangleDissection", Name: "Dissection of Calot's Triangle", GoalTime: "10-25 minutes"},
			{Key: "cysticArteryDuctClipping", Name: "Clipping and division of Cystic Artery and Duct", GoalTime: "5-10 minutes"},
			{Key: "gallbladderDissection", Name: "Gallbladder Dissection of the Liver", GoalTime: "10-20 minutes"},
			{Key: "specimenRemoval", Name: "Specimen removal", GoalTime: "5-10 minutes"},
			{Key: "portClosure", Name: "Port Closure", GoalTime: "5-10 minutes"},
			{Key: "skinClosure", Name: "Skin Closure", GoalTime: "2-5 minutes"},
		},
		DifficultyDescriptions: standardDifficulty,
	},
	{
		ID:   "robotic-inguinal-hernia-tapp",
		Name: "Robotic Assisted Laparoscopic Inguinal Hernia Repair (TAPP)",
		Steps: []Step{
			{Key: "portPlacement", Name: "Port Placement", GoalTime: "5-10 minutes"},
			{Key: "robotDocking", Name: "Docking the robot", GoalTime: "5-15 minutes"},
			{Key: "instrumentPlacement", Name: "Instrument Placement", GoalTime: "2-5 minutes"},
			{Key: "herniaReduction", Name: "Reduction of Hernia", GoalTime: "10-20 minutes"},
			{Key: "flapCreation", Name: "Flap Creation", GoalTime: "20-40 minutes"},
			{Key: "meshPlacement", Name: "Mesh Placement/Fixation", GoalTime: "15-30 minutes"},
			{Key: "flapClosure", Name: "Flap Closure", GoalTime: "10-20 minutes"},
			{Key: "undocking", Name: "Undocking/trocar removal", GoalTime: "5-10 minutes"},
			{Key: "skinClosure", Name: "Skin Closure", GoalTime: "5-10 minutes"},
		},
		DifficultyDescriptions: standardDifficulty,
	},
	{
		ID:   "robotic-ventral-hernia-tapp",
		Name: "Robotic Lap Ventral Hernia Repair (TAPP)",
		Steps: []Step{
			{Key: "portPlacement", Name: "Port Placement", GoalTime: "5-10 minutes"},
			{Key: "robotDocking", Name: "Docking the robot", GoalTime: "5-15 minutes"},
			{Key: "instrumentPlacement", Name: "Instrument Placement", GoalTime: "2-5 minutes"},
			{Key: "herniaReduction", Name: "Reduction of Hernia", GoalTime: "10-20 minutes"},
			{Key: "flapCreation", Name: "Flap Creation", GoalTime: "20-40 minutes"},
			{Key: "herniaClosure", Name: "Hernia Closure", GoalTime: "10-20 minutes"},
			{Key: "meshPlacement", Name: "Mesh Placement/Fixation", GoalTime: "15-30 minutes"},
			{Key: "flapClosure", Name: "Flap Closure", GoalTime: "10-20 minutes"},
			{Key: "undocking", Name: "Undocking/trocar removal", GoalTime: "5-10 minutes"},
			{Key: "skinClosure", Name: "Skin Closure", GoalTime: "5-10 minutes"},
		},
		DifficultyDescriptions: standardDifficulty,
	},
	{
		ID:   "lap-appendicectomy",
		Name: "Laparoscopic Appendicectomy",
		Steps: []Step{
			{Key: "portPlacement", Name: "Port Placement", GoalTime: "5-10 minutes"},
			{Key: "appendixDissection", Name: "Identification, Dissection & Exposure of Appendix", GoalTime: "10-20 minutes"},
			{Key: "mesoappendixDivision", Name: "Division of Mesoappendix and Appendix Base", GoalTime: "5-10 minutes"},
			{Key: "specimenExtraction", Name: "Specimen Extraction", GoalTime: "2-5 minutes"},
			{Key: "portClosure", Name: "Port Closure", GoalTime: "5-10 minutes"},
			{Key: "skinClosure", Name: "Skin Closure", GoalTime: "2-5 minutes"},
		},
		DifficultyDescriptions: appendicectomyDifficulty,
	},
}

// StaticCatalog serves the built-in procedure rubrics.
type StaticCatalog struct {
	byID  map[string]Rubric
	order []Rubric
}

// NewStaticCatalog builds the catalog of built-in rubrics.
func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{byID: make(map[string]Rubric, len(builtinRubrics))}
	for _, r := range builtinRubrics {
		c.byID[r.ID] = r
		c.order = append(c.order, r)
	}
	return c
}

// Get resolves a rubric by its ID. It also accepts the full display name so
// callers holding a procedure name rather than a slug still resolve.
func (c *StaticCatalog) Get(id string) (Rubric, error) {
	if r, ok := c.byID[id]; ok {
		return r, nil
	}
	for _, r := range c.order {
		if r.Name == id {
			return r, nil
		}
	}
	return Rubric{}, &ErrUnknownProcedure{ID: id}
}

// List returns all rubrics in declaration order.
func (c *StaticCatalog) List() []Rubric {
	out := make([]Rubric, len(c.order))
	copy(out, c.order)
	return out
}

var _ Catalog = (*StaticCatalog)(nil)
