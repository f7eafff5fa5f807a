package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapping(placeholder, value string, et EntityType) Mapping {
	return Mapping{Placeholder: placeholder, Entity: Entity{OriginalValue: value, Type: et, Confidence: 0.9}}
}

func TestResult_Deanonymize(t *testing.T) {
	r := NewResult("Mail a@b.com about Küche", "Mail [EMAIL_1] about [ROOM_1]", []Mapping{
		mapping("[ROOM_1]", "Küche", EntityHomeRoom),
		mapping("[EMAIL_1]", "a@b.com", EntityEmail),
	})

	assert.Equal(t, "Mail a@b.com about Küche", r.Deanonymize(r.AnonymizedText()))
	assert.Equal(t, "Küche is clean, wrote a@b.com", r.Deanonymize("[ROOM_1] is clean, wrote [EMAIL_1]"))
	assert.Equal(t, "unknown [EMAIL_9] stays", r.Deanonymize("unknown [EMAIL_9] stays"))
	assert.Equal(t, "", r.Deanonymize(""))
}

func TestResult_Accessors(t *testing.T) {
	r := NewResult("orig", "anon", []Mapping{
		mapping("[ROOM_1]", "Küche", EntityHomeRoom),
		mapping("[EMAIL_1]", "a@b.com", EntityEmail),
		mapping("[ROOM_2]", "Bad", EntityHomeRoom),
	})

	assert.True(t, r.HasAnonymizedEntities())
	assert.Equal(t, 3, r.EntityCount())
	assert.Equal(t, []EntityType{EntityEmail, EntityHomeRoom}, r.DetectedEntityTypes())
	assert.Equal(t, "Küche", r.OriginalValue("[ROOM_1]"))
	assert.Equal(t, "[ROOM_7]", r.OriginalValue("[ROOM_7]"))

	p, ok := r.Placeholder("Bad")
	assert.True(t, ok)
	assert.Equal(t, "[ROOM_2]", p)
	_, ok = r.Placeholder("Garten")
	assert.False(t, ok)

	findings := r.Findings()
	require.Len(t, findings, 2)
	assert.Equal(t, EntityEmail, findings[0].EntityType)
	assert.Equal(t, 2, findings[1].Count)
	assert.Equal(t, []string{"[ROOM_1]", "[ROOM_2]"}, findings[1].Placeholders)

	mappings := r.Mappings()
	mappings[0].Placeholder = "mutated"
	assert.Equal(t, "[ROOM_1]", r.Mappings()[0].Placeholder, "mappings are copied")
}

func TestResult_FirstWriteWins(t *testing.T) {
	r := NewResult("", "", []Mapping{
		mapping("[ROOM_1]", "Bad", EntityHomeRoom),
		mapping("[ROOM_1]", "Flur", EntityHomeRoom),
		mapping("[ZONE_1]", "Bad", EntityHomeZone),
	})

	assert.Equal(t, "Bad", r.OriginalValue("[ROOM_1]"))
	p, _ := r.Placeholder("Bad")
	assert.Equal(t, "[ROOM_1]", p)
	assert.Equal(t, 2, r.EntityCount())
}

func TestResult_AnonymizeWithExistingMappings(t *testing.T) {
	r := NewResult("", "", []Mapping{
		mapping("[ROOM_1]", "living room", EntityHomeRoom),
		mapping("[ROOM_2]", "room", EntityHomeRoom),
	})

	t.Run("longer values first", func(t *testing.T) {
		got := r.AnonymizeWithExistingMappings("The living room is next to the room")
		assert.Equal(t, "The [ROOM_1] is next to the [ROOM_2]", got)
	})

	t.Run("idempotent", func(t *testing.T) {
		once := r.AnonymizeWithExistingMappings("living room, room, bedroom")
		assert.Equal(t, once, r.AnonymizeWithExistingMappings(once))
	})

	t.Run("no detection of new values", func(t *testing.T) {
		assert.Equal(t, "kitchen and a@b.com", r.AnonymizeWithExistingMappings("kitchen and a@b.com"))
	})

	t.Run("round trip with deanonymize", func(t *testing.T) {
		text := "Lights in the living room and the spare room are on"
		assert.Equal(t, text, r.Deanonymize(r.AnonymizeWithExistingMappings(text)))
	})
}

func TestResult_AnonymizeWithExistingMappings_ProtectsTokens(t *testing.T) {
	r := NewResult("", "", []Mapping{
		mapping("[IBAN_1]", "AT61 1904 3002 3457 3201", EntityIBAN),
		mapping("[QTY_1]", "1", EntityQuantity),
	})

	got := r.AnonymizeWithExistingMappings("[IBAN_1] got 1 payment, [DATE_1] too")
	assert.Equal(t, "[IBAN_1] got [QTY_1] payment, [DATE_1] too", got)
}

func TestResult_NilAndEmpty(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.HasAnonymizedEntities())
	assert.Equal(t, 0, nilResult.EntityCount())
	assert.Equal(t, "[EMAIL_1]", nilResult.Deanonymize("[EMAIL_1]"))
	assert.Equal(t, "a@b.com", nilResult.AnonymizeWithExistingMappings("a@b.com"))
	assert.Empty(t, nilResult.DetectedEntityTypes())
	assert.Empty(t, nilResult.Findings())

	empty := NewResult("text", "text", nil)
	assert.False(t, empty.HasAnonymizedEntities())
	assert.Equal(t, "[EMAIL_1]", empty.Deanonymize("[EMAIL_1]"))
	assert.Equal(t, "text", empty.AnonymizeWithExistingMappings("text"))
}
