package domain

import "github.com/uptrace/bun"

// DoctorRoles are the account roles that take part in shift allocation.
var DoctorRoles = []string{"doctor", "doctor_s"}

// Doctor is a read-only projection of a doctor account. The specialty column
// name differs between deployments, so it is selected under an alias.
type Doctor struct {
	bun.BaseModel `bun:"table:users"`

	ID        int64  `bun:"id" json:"id"`
	Name      string `bun:"name" json:"name"`
	Specialty string `bun:"specialty" json:"speciality"`
}
