package schedule

import (
	"encoding/xml"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
)

// MS Project XML shapes, limited to the fields the importer consumes.

type msProjectFile struct {
	XMLName xml.Name   `xml:"Project"`
	Tasks   msTaskList `xml:"Tasks"`
}

type msTaskList struct {
	Tasks []msTask `xml:"Task"`
}

type msTask struct {
	UID             int                 `xml:"UID"`
	Name            string              `xml:"Name"`
	WBS             string              `xml:"WBS"`
	OutlineLevel    int                 `xml:"OutlineLevel"`
	Duration        string              `xml:"Duration"`
	Start           string              `xml:"Start"`
	Finish          string              `xml:"Finish"`
	Milestone       string              `xml:"Milestone"`
	PercentComplete string              `xml:"PercentComplete"`
	ConstraintType  string              `xml:"ConstraintType"`
	ConstraintDate  string              `xml:"ConstraintDate"`
	Predecessors    []msPredecessorLink `xml:"PredecessorLink"`
}

type msPredecessorLink struct {
	PredecessorUID int    `xml:"PredecessorUID"`
	Type           int    `xml:"Type"`
	LinkLag        string `xml:"LinkLag"`
}

// ImportResult is the model produced from an MS Project document, ready
// to be loaded into a Network.
type ImportResult struct {
	Activities   []*domain.Activity
	Dependencies []*domain.Dependency
	Skipped      int
}

// MS Project dependency type codes.
var msDependencyTypes = map[int]domain.DependencyType{
	0: domain.FinishToFinish,
	1: domain.FinishToStart,
	2: domain.StartToFinish,
	3: domain.StartToStart,
}

// MS Project constraint type codes, restricted to the ones the model
// supports. Unlisted codes fall back to asap.
var msConstraintTypes = map[string]domain.ConstraintType{
	"0": domain.ConstraintASAP,
	"1": domain.ConstraintALAP,
	"4": domain.ConstraintSNET,
	"5": domain.ConstraintSNLT,
	"6": domain.ConstraintFNET,
	"7": domain.ConstraintFNLT,
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts an MS Project PT#H#M#S duration into whole
// working days at 8 hours per day, rounding up partial days.
func parseISODuration(s string) (int, bool) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	totalMinutes := hours*60 + minutes
	days := totalMinutes / 480
	if totalMinutes%480 != 0 {
		days++
	}
	return days, true
}

// ImportMSProject decodes an MS Project XML export into activities and
// dependencies for the given program. Summary rows (outline containers)
// are kept; tasks with unparsable durations are skipped and counted.
func ImportMSProject(r io.Reader, programID, wbsID uuid.UUID) (*ImportResult, error) {
	var file msProjectFile
	if err := xml.NewDecoder(r).Decode(&file); err != nil {
		return nil, domain.Validation("msproject_parse", "invalid MS Project XML: %v", err)
	}

	result := &ImportResult{}
	byUID := make(map[int]*domain.Activity)

	for _, task := range file.Tasks.Tasks {
		duration := 0
		if task.Duration != "" {
			d, ok := parseISODuration(task.Duration)
			if !ok {
				log.Warn().Int("uid", task.UID).Str("duration", task.Duration).Msg("Skipping task with unparsable duration")
				result.Skipped++
				continue
			}
			duration = d
		}

		milestone := task.Milestone == "1" || task.Milestone == "true"
		if milestone {
			duration = 0
		}

		a := &domain.Activity{
			ID:         uuid.New(),
			ProgramID:  programID,
			WBSID:      wbsID,
			Code:       task.WBS,
			Name:       task.Name,
			Duration:   duration,
			Milestone:  milestone,
			Constraint: domain.ConstraintASAP,
		}
		if a.Code == "" {
			a.Code = strconv.Itoa(task.UID)
		}
		if ct, ok := msConstraintTypes[task.ConstraintType]; ok {
			a.Constraint = ct
		}
		if task.ConstraintDate != "" {
			if t, err := time.Parse("2006-01-02T15:04:05", task.ConstraintDate); err == nil {
				a.ConstraintDate = &t
			}
		}
		if task.PercentComplete != "" {
			if pct, err := strconv.Atoi(task.PercentComplete); err == nil {
				a.PercentComplete = decimal.NewFromInt(int64(pct))
			}
		}
		if task.Start != "" {
			if t, err := time.Parse("2006-01-02T15:04:05", task.Start); err == nil {
				a.PlannedStart = &t
			}
		}
		if task.Finish != "" {
			if t, err := time.Parse("2006-01-02T15:04:05", task.Finish); err == nil {
				a.PlannedFinish = &t
			}
		}

		byUID[task.UID] = a
		result.Activities = append(result.Activities, a)
	}

	for _, task := range file.Tasks.Tasks {
		successor, ok := byUID[task.UID]
		if !ok {
			continue
		}
		for _, link := range task.Predecessors {
			predecessor, ok := byUID[link.PredecessorUID]
			if !ok {
				log.Warn().Int("uid", task.UID).Int("predecessor", link.PredecessorUID).Msg("Dropping link to missing predecessor")
				result.Skipped++
				continue
			}
			depType, ok := msDependencyTypes[link.Type]
			if !ok {
				depType = domain.FinishToStart
			}
			// LinkLag is in tenths of minutes; 4800 tenths = one 8h day.
			lagTenths, _ := strconv.Atoi(link.LinkLag)
			result.Dependencies = append(result.Dependencies, &domain.Dependency{
				ID:            uuid.New(),
				ProgramID:     programID,
				PredecessorID: predecessor.ID,
				SuccessorID:   successor.ID,
				Type:          depType,
				Lag:           lagTenths / 4800,
			})
		}
	}

	log.Info().
		Int("activities", len(result.Activities)).
		Int("dependencies", len(result.Dependencies)).
		Int("skipped", result.Skipped).
		Msg("MS Project import complete")

	return result, nil
}
