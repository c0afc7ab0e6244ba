package models

import (
	"time"

	"github.com/lib/pq"
)

// Classroom is a bookable room. Building and floor only influence soft scoring.
type Classroom struct {
	ID        string         `db:"id" json:"id" yaml:"id" validate:"required"`
	Name      string         `db:"name" json:"name" yaml:"name"`
	Capacity  int            `db:"capacity" json:"capacity" yaml:"capacity" validate:"gt=0"`
	Category  string         `db:"category" json:"category" yaml:"category"`
	Equipment pq.StringArray `db:"equipment" json:"equipment" yaml:"equipment"`
	Building  string         `db:"building" json:"building" yaml:"building"`
	Floor     int            `db:"floor" json:"floor" yaml:"floor"`
	CreatedAt time.Time      `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at" yaml:"-"`
}

// HasEquipment reports whether the classroom carries the named item.
func (c Classroom) HasEquipment(item string) bool {
	for _, e := range c.Equipment {
		if e == item {
			return true
		}
	}
	return false
}
