package sqlite

import (
	"time"

	"github.com/zjrosen/flowsync/internal/metadata"
)

// AutomationModel represents a row of the automations table.
// Timestamps are Unix seconds.
type AutomationModel struct {
	Key                 string
	Title               string
	Description         string
	Namespace           string
	FlowID              string
	TemplatePath        string
	ConfigurationSchema string
	Labels              string
	Category            string
	DifficultyLevel     string
	Price               float64
	CreatedAt           int64
	UpdatedAt           int64
}

func toAutomationModel(p metadata.Projection, now time.Time) *AutomationModel {
	return &AutomationModel{
		Key:                 p.Key,
		Title:               p.Title,
		Description:         p.Description,
		Namespace:           p.Namespace,
		FlowID:              p.FlowID,
		TemplatePath:        p.TemplatePath,
		ConfigurationSchema: p.ConfigurationSchema,
		Labels:              p.Labels,
		Category:            p.Category,
		DifficultyLevel:     p.DifficultyLevel,
		Price:               p.Price,
		CreatedAt:           now.Unix(),
		UpdatedAt:           now.Unix(),
	}
}

func (m *AutomationModel) toProjection() metadata.Projection {
	return metadata.Projection{
		Key:                 m.Key,
		Title:               m.Title,
		Description:         m.Description,
		Namespace:           m.Namespace,
		FlowID:              m.FlowID,
		TemplatePath:        m.TemplatePath,
		ConfigurationSchema: m.ConfigurationSchema,
		Labels:              m.Labels,
		Category:            m.Category,
		DifficultyLevel:     m.DifficultyLevel,
		Price:               m.Price,
	}
}
