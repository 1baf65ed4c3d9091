package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservationStatus(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusAccepted.Valid())
	assert.True(t, StatusRefused.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, ReservationStatus("confirmed").Valid())
	assert.False(t, ReservationStatus("").Valid())

	assert.True(t, StatusRefused.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAccepted.Terminal())
}

func TestTimeSlots(t *testing.T) {
	slots := TimeSlots()
	assert.Len(t, slots, 10)
	assert.Equal(t, "09:00", slots[0])
	assert.Equal(t, "18:00", slots[9])

	// Ascending order.
	for i := 1; i < len(slots); i++ {
		assert.Less(t, slots[i-1], slots[i])
	}

	// Returned slice is a copy; mutating it must not leak.
	slots[0] = "00:00"
	assert.Equal(t, "09:00", TimeSlots()[0])
}

func TestValidTimeSlot(t *testing.T) {
	assert.True(t, ValidTimeSlot("09:00"))
	assert.True(t, ValidTimeSlot("18:00"))
	assert.False(t, ValidTimeSlot(""))
	assert.False(t, ValidTimeSlot("9:00"))
	assert.False(t, ValidTimeSlot("19:00"))
	assert.False(t, ValidTimeSlot("09:30"))
}

func TestUserRoles(t *testing.T) {
	u := &User{Roles: []Role{RoleAdmin, RoleUser}}
	assert.True(t, u.HasRole(RoleAdmin))
	assert.False(t, u.HasRole(RoleAgent))
	assert.True(t, u.IsStaff())

	plain := &User{Roles: []Role{RoleUser}}
	assert.False(t, plain.IsStaff())

	assert.True(t, RoleAgent.Valid())
	assert.False(t, Role("manager").Valid())
}

func TestPropertyStatus(t *testing.T) {
	assert.True(t, PropertyForSale.Valid())
	assert.True(t, PropertyRented.Valid())
	assert.False(t, PropertyStatus("available").Valid())
}
