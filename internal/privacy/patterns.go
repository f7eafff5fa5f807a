package privacy

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	none = regexp2.None
	ci   = regexp2.IgnoreCase
)

// PatternSpec describes one detection rule before compilation.
type PatternSpec struct {
	Type       EntityType
	Name       string
	Confidence float64
	Options    regexp2.RegexOptions
	Expr       string
	Validator  Validator
}

// Pattern is a compiled PatternSpec. Patterns are immutable and safe for
// concurrent use.
type Pattern struct {
	Type       EntityType
	Name       string
	Confidence float64
	Validator  Validator

	re *regexp2.Regexp
}

// Registry is an ordered, read-only set of compiled patterns.
type Registry struct {
	patterns []*Pattern
}

// Compile builds a registry from specs. Every matcher gets the given per-scan
// timeout so a pathological input cannot stall a request.
func Compile(specs []PatternSpec, matchTimeout time.Duration) (*Registry, error) {
	reg := &Registry{patterns: make([]*Pattern, 0, len(specs))}
	for _, s := range specs {
		if !s.Type.Valid() {
			return nil, fmt.Errorf("pattern %s: unknown entity type %q", s.Name, s.Type)
		}
		re, err := regexp2.Compile(s.Expr, s.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", s.Name, err)
		}
		if matchTimeout > 0 {
			re.MatchTimeout = matchTimeout
		}
		reg.patterns = append(reg.patterns, &Pattern{
			Type:       s.Type,
			Name:       s.Name,
			Confidence: s.Confidence,
			Validator:  s.Validator,
			re:         re,
		})
	}
	return reg, nil
}

// Patterns returns the compiled patterns in definition order.
func (r *Registry) Patterns() []*Pattern {
	out := make([]*Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Len returns the number of patterns.
func (r *Registry) Len() int { return len(r.patterns) }

// CountByType returns how many patterns target each entity type.
func (r *Registry) CountByType() map[EntityType]int {
	counts := make(map[EntityType]int)
	for _, p := range r.patterns {
		counts[p.Type]++
	}
	return counts
}

func words(list ...string) string {
	return `\b(?:` + strings.Join(list, "|") + `)\b`
}

var (
	germanRooms = []string{
		"Wohnzimmer", "Schlafzimmer", "Kinderzimmer", "Badezimmer", "Küche", "Kueche",
		"Esszimmer", "Arbeitszimmer", "Büro", "Buero", "Gästezimmer", "Gaestezimmer",
		"Flur", "Diele", "Eingang", "Eingangshalle", "Vorraum", "Vorzimmer",
		"Abstellraum", "Abstellkammer", "Keller", "Dachboden", "Speicher", "Garage",
		"Carport", "Terrasse", "Balkon", "Garten", "Wintergarten", "Hauswirtschaftsraum",
		"Waschküche", "Waschkueche", "WC", "Toilette", "Gäste-WC", "Gaeste-WC",
		"Ankleidezimmer", "Ankleide", "Hobbyraum", "Spielzimmer", "Heimkino", "Sauna",
		"Fitnessraum", "Wellnessbereich", "Hauswirtschaft", "Speis", "Speisekammer",
	}
	englishRooms = []string{
		"living room", "living-room", "livingroom", "bedroom", "bathroom", "kitchen",
		"dining room", "dining-room", "diningroom", "study", "office", "home office",
		"guest room", "guest-room", "guestroom", "hallway", "hall", "entryway",
		"entrance", "foyer", "storage room", "storage", "basement", "cellar", "attic",
		"loft", "garage", "carport", "terrace", "patio", "balcony", "garden", "yard",
		"backyard", "front yard", "laundry room", "laundry", "utility room", "restroom",
		"toilet", "powder room", "closet", "walk-in closet", "playroom", "game room",
		"media room", "home theater", "home theatre", "sauna", "gym", "fitness room",
		"spa", "pantry", "mudroom", "nursery", "den", "sunroom", "conservatory",
		"master bedroom", "master bath",
	}
	germanZones = []string{
		"Erdgeschoss", "EG", "Obergeschoss", "OG", "Untergeschoss", "UG",
		"Dachgeschoss", "DG", "Keller", "Parterre", `(?:1\.|2\.|3\.)\s*(?:Stock|Etage|OG)`,
		"Außenbereich", "Aussenbereich", "Innenbereich", "Wohnbereich", "Schlafbereich",
		"Eingangsbereich", "Technikraum",
	}
	englishZones = []string{
		"ground floor", "first floor", "second floor", "third floor", "basement",
		"attic", "upstairs", "downstairs", "outdoor area", "indoor area", "living area",
		"sleeping area", "entrance area", "utility area",
	}
	germanScenes = []string{
		`Guten\s*Morgen`, `Gute\s*Nacht`, "Aufwachen", "Schlafengehen",
		"Abwesenheitsmodus", "Anwesenheitsmodus", "Urlaubsmodus", "Filmabend",
		"Kinoabend", "Partymodus", "Entspannungsmodus", "Lesemodus", `Musik\s*hören`,
	}
	englishScenes = []string{
		`good\s*morning`, `good\s*night`, `wake\s*up`, "bedtime", `away\s*mode`,
		`vacation\s*mode`, `movie\s*night`, `party\s*mode`, `night\s*mode`,
		`day\s*mode`, `eco\s*mode`, `sleep\s*mode`,
	}
	germanDevices = []string{
		"Licht", "Lichter", "Lampe", "Lampen", "Deckenlampe", "Stehlampe",
		"Jalousie", "Jalousien", "Rollladen", "Rollläden", "Rolladen", "Rollo", "Rollos",
		"Markise", "Heizung", "Heizkörper", "Thermostat", "Klimaanlage", "Lüftung",
		"Ventilator", "Alarmanlage", "Rauchmelder", "Bewegungsmelder", "Türschloss",
		"Garagentor", "Steckdose", "Fernseher", "Lautsprecher", "Saugroboter",
		"Staubsauger", "Waschmaschine", "Trockner", "Geschirrspüler", "Kühlschrank",
		"Backofen", "Kamera", "Türklingel",
	}
	englishDevices = []string{
		"lights?", "lamps?", "ceiling light", "blinds", "shutters?", "curtains",
		"awning", "heating", "heater", "radiator", "thermostat", "air conditioning",
		"air conditioner", "ventilation", "fan", "alarm system", "smoke detector",
		"motion sensor", "door lock", "smart lock", "garage door", "smart plug",
		"power outlet", "tv", "television", "speakers?", "robot vacuum",
		"vacuum cleaner", "washing machine", "dryer", "dishwasher", "fridge",
		"refrigerator", "oven", "cameras?", "doorbell",
	}
	austrianPlateDistricts = []string{
		"W", "G", "L", "S", "K", "ST", "OÖ", "NÖ", "T", "V", "B", "NO", "WU", "WB",
		"MD", "GF", "HL", "KR", "WT", "BN", "KS", "BL", "EU", "GD", "GS", "HB", "HF",
		"HO", "IL", "JE", "JO", "JU", "KB", "KI", "KL", "KO", "LA", "LB", "LE", "LF",
		"LI", "LL", "LN", "LZ", "MA", "ME", "MI", "MU", "MZ", "ND", "NK", "OP", "OW",
		"PE", "PL", "RA", "RE", "RI", "RO", "SB", "SD", "SE", "SK", "SL", "SP", "SR",
		"SW", "SZ", "TA", "TU", "UU", "VB", "VK", "VL", "VO", "WE", "WL", "WN", "WO",
		"WR", "WY", "ZE", "ZT",
	}
)

const (
	amountDigits     = `\d{1,3}(?:[.,']?\d{3})*(?:[.,]\d{1,2})?`
	amountDigitsUS   = `\d{1,3}(?:[,']?\d{3})*(?:\.\d{1,2})?`
	numberQualifier  = `(?:nr\.?|no\.?|nummer)?[:\s]*([A-Z0-9-]{4,15})`
	germanMonths     = `(?:Januar|Februar|März|April|Mai|Juni|Juli|August|September|Oktober|November|Dezember|Jänner)`
	englishMonths    = `(?:January|February|March|April|May|June|July|August|September|October|November|December)`
	dayOfMonth       = `(?:0?[1-9]|[12]\d|3[01])`
	monthOfYear      = `(?:0?[1-9]|1[0-2])`
	roomQualifier    = `(?:[-\s]?(?:Wohnzimmer|Schlafzimmer|Bad|Küche|Flur))?`
	germanTownSuffix = `[A-ZÄÖÜ][a-zäöüß]+`
)

// DefaultPatterns returns the built-in rule set, ordered by family. The order
// breaks ties during overlap resolution, so append new families at the end
// of their group.
func DefaultPatterns() []PatternSpec {
	specs := []PatternSpec{
		{EntityEmail, "email", 0.95, ci, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, nil},

		{EntityPhone, "phone_at", 0.90, none, `(?:\+43|0043|\(0\)|0)\s*[1-9](?:[\s./-]?\d){6,12}`, nil},
		{EntityPhone, "phone_de", 0.90, none, `(?:\+49|0049|0)\s*[1-9](?:[\s./-]?\d){6,12}`, nil},
		{EntityPhone, "phone_international", 0.85, none, `\+[1-9]\d{0,2}[\s.-]?(?:\(\d{1,4}\)[\s.-]?)?(?:\d[\s.-]?){6,14}`, nil},
		{EntityPhone, "phone_parentheses", 0.85, none, `\(0\d{1,5}\)[\s./-]?[\d\s./-]{6,12}`, nil},

		{EntityCreditCard, "card_visa", 0.95, none, `4\d{3}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}`, ValidLuhn},
		{EntityCreditCard, "card_mastercard", 0.95, none, `(?:5[1-5]\d{2}|222[1-9]|22[3-9]\d|2[3-6]\d{2}|27[01]\d|2720)[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}`, ValidLuhn},
		{EntityCreditCard, "card_amex", 0.95, none, `3[47]\d{2}[\s-]?\d{6}[\s-]?\d{5}`, ValidLuhn},
		{EntityCreditCard, "card_diners", 0.95, none, `3(?:0[0-5]|[68]\d)\d[\s-]?\d{6}[\s-]?\d{4}`, ValidLuhn},
		{EntityCreditCard, "card_generic", 0.80, none, `\b\d{4}[\s-]\d{4}[\s-]\d{4}[\s-]\d{4}\b`, ValidLuhn},

		{EntityIBAN, "iban_at", 0.95, none, `AT\s?\d{2}(?:\s?\d{4}){4}`, ValidIBAN},
		{EntityIBAN, "iban_de", 0.95, none, `DE\s?\d{2}\s?(?:\d{4}\s?){4}\d{2}`, ValidIBAN},
		{EntityIBAN, "iban_generic", 0.90, none, `[A-Z]{2}\s?\d{2}\s?(?:[A-Z0-9]{4}\s?){2,7}[A-Z0-9]{1,4}`, ValidIBAN},

		{EntityBICSwift, "bic_at", 0.90, none, `\b[A-Z]{4}AT[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`, nil},
		{EntityBICSwift, "bic_de", 0.90, none, `\b[A-Z]{4}DE[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`, nil},
		{EntityBICSwift, "bic_generic", 0.80, none, `\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`, nil},

		{EntityAustrianSVN, "at_svn", 0.85, none, `\b\d{4}[\s-]?(?:0[1-9]|[12]\d|3[01])(?:0[1-9]|1[0-2])\d{2}\b`, nil},
		{EntityAustrianUID, "at_uid", 0.95, ci, `ATU\s?\d{8}\b`, nil},
		{EntityAustrianFirmenbuch, "at_firmenbuch", 0.95, ci, `FN\s?\d{5,6}\s?[a-zA-Z]\b`, nil},
		{EntityAustrianZVR, "at_zvr", 0.95, ci, `ZVR[:\s-]?\d{9}\b`, nil},
		{EntityAustrianSteuernummer, "at_steuernummer", 0.80, none, `\b\d{2,3}[/\s-]\d{3}[/\s-]\d{4,5}\b`, nil},

		{EntityGermanSteuerID, "de_steuer_id", 0.75, none, `\b\d{2}\s?\d{3}\s?\d{3}\s?\d{3}\b`, nil},
		{EntityGermanSozialversicherung, "de_svn", 0.85, none, `\b\d{2}[\s]?(?:0[1-9]|[12]\d|3[01])(?:0[1-9]|1[0-2])\d{2}[\s]?[A-Z]\d{3}[\s]?\d\b`, nil},

		{EntitySSN, "us_ssn", 0.90, none, `\b\d{3}[\s-]\d{2}[\s-]\d{4}\b`, nil},
		{EntityUSTIN, "us_tin", 0.80, none, `\b\d{2}[\s-]\d{7}\b`, nil},

		{EntityAustrianPassport, "at_passport", 0.70, none, `\b[A-Z]\d{7}\b`, nil},
		{EntityPassport, "passport", 0.85, none, `(?i)(?:pass(?:port)?|reisepass)[:\s#-]*([A-Z0-9]{6,12})`, nil},

		{EntityAustrianLicensePlate, "at_plate", 0.90, none, `\b(?:` + strings.Join(austrianPlateDistricts, "|") + `)\s?\d{1,5}\s?[A-Z]{1,3}\b`, nil},
		{EntityGermanLicensePlate, "de_plate", 0.85, none, `\b[A-ZÄÖÜ]{1,3}[\s-]?[A-Z]{1,2}[\s-]?\d{1,4}[EH]?\b`, nil},
		{EntityVIN, "vin", 0.80, none, `\b[A-HJ-NPR-Z0-9]{17}\b`, ValidVIN},

		{EntityIPAddress, "ipv4", 0.95, none, `\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`, nil},
		{EntityIPv6Address, "ipv6", 0.95, none, `(?i)\b(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b|\b(?:[0-9a-f]{1,4}:){1,7}:|\b(?:[0-9a-f]{1,4}:){1,6}:[0-9a-f]{1,4}\b`, nil},
		{EntityMACAddress, "mac", 0.95, none, `(?i)\b(?:[0-9a-f]{2}[:-]){5}[0-9a-f]{2}\b`, nil},
		{EntityURL, "url", 0.95, none, "https?://[^\\s<>\"{}|\\\\^`\\[\\]]+", nil},

		{EntityCoordinates, "coordinates", 0.85, none, `[-+]?(?:[1-8]?\d(?:\.\d+)?|90(?:\.0+)?)[,\s]+[-+]?(?:180(?:\.0+)?|(?:1[0-7]\d|[1-9]?\d)(?:\.\d+)?)`, nil},

		{EntityDate, "date_eu", 0.80, none, `\b` + dayOfMonth + `[./-]` + monthOfYear + `[./-](?:19|20)?\d{2}\b`, nil},
		{EntityDate, "date_us", 0.75, none, `\b` + monthOfYear + `[/]` + dayOfMonth + `[/](?:19|20)\d{2}\b`, nil},
		{EntityDate, "date_iso", 0.85, none, `\b(?:19|20)\d{2}[-](?:0[1-9]|1[0-2])[-](?:0[1-9]|[12]\d|3[01])\b`, nil},
		{EntityDate, "date_written_de", 0.85, ci, `\b` + dayOfMonth + `\.?\s*` + germanMonths + `\s*(?:19|20)?\d{2}\b`, nil},
		{EntityDate, "date_written_en", 0.85, ci, `\b` + englishMonths + `\s+` + dayOfMonth + `(?:st|nd|rd|th)?,?\s*(?:19|20)?\d{2}\b`, nil},

		{EntityCurrencyAmount, "amount_eur", 0.90, ci, `(?:€\s?|EUR\s?)` + amountDigits + `|` + amountDigits + `\s?(?:€|EUR|Euro|Euros)\b`, nil},
		{EntityCurrencyAmount, "amount_usd", 0.90, ci, `(?:\$\s?|USD\s?)` + amountDigitsUS + `|` + amountDigitsUS + `\s?(?:\$|USD|Dollar|Dollars)\b`, nil},
		{EntityCurrencyAmount, "amount_chf", 0.90, ci, `(?:CHF\s?)` + amountDigits + `|` + amountDigits + `\s?(?:CHF|Franken|Fr\.)\b`, nil},
		{EntityCurrencyAmount, "amount_gbp", 0.90, ci, `(?:£\s?|GBP\s?)` + amountDigitsUS + `|` + amountDigitsUS + `\s?(?:£|GBP|Pound|Pounds)\b`, nil},
		{EntityMonetaryValue, "monetary_value", 0.85, ci, `\b` + amountDigits + `\s?(?:EUR|USD|GBP|CHF|AUD|CAD|JPY|CNY|INR|RUB|BRL|KRW|SEK|NOK|DKK|PLN|CZK|HUF|RON|BGN|HRK|TRY)\b`, nil},

		{EntityQuantity, "quantity", 0.75, ci, `\b\d+(?:[.,]\d+)?\s*(?:kg|g|mg|l|ml|cl|dl|km|m|cm|mm|ha|qm|m²|m³|Stück|Stk|pcs|pieces|units?)\b`, nil},
		{EntityPercentage, "percentage", 0.80, ci, `\b\d+(?:[.,]\d+)?\s?(?:%|Prozent|percent)\b`, nil},
		{EntityAge, "age", 0.80, ci, `\b\d{1,3}\s*(?:Jahre?|years?|J\.|y\.o\.|yo)\s*(?:alt)?\b`, nil},

		{EntityPostalCode, "postal_at", 0.80, none, `\b[1-9]\d{3}\b(?=\s+(?:` + germanTownSuffix + `|Wien|Graz|Linz|Salzburg|Innsbruck))`, nil},
		{EntityPostalCode, "postal_de", 0.80, none, `\b[0-9]{5}\b(?=\s+(?:` + germanTownSuffix + `|Berlin|Hamburg|München|Köln|Frankfurt))`, nil},
		{EntityPostalCode, "postal_us", 0.70, none, `\b\d{5}(?:-\d{4})?\b`, nil},

		{EntityStreetAddress, "street_de", 0.85, ci, `(?:[A-ZÄÖÜ][a-zäöüß]+(?:straße|strasse|gasse|weg|platz|ring|allee|damm|ufer|park|hof|berg))[\s,]+\d{1,4}\s?[a-zA-Z]?(?:[/-]\d{1,4})?`, nil},
		{EntityStreetAddress, "street_en", 0.85, ci, `\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl)\.?(?:\s+(?:Apt|Suite|Unit|#)\s*\d+)?`, nil},

		{EntityReferenceNumber, "reference_number", 0.80, none, `(?i)(?:ref|reference|bestellung|order|auftrag|rechnung|invoice|kunden?|customer|vertrag|contract|police|policy)[.:\s#-]*([A-Z0-9]{4,20})`, nil},
		{EntityOrderNumber, "order_number", 0.85, none, `(?i)(?:order|bestellung|auftrag)[\s#-]*` + numberQualifier, nil},
		{EntityInvoiceNumber, "invoice_number", 0.85, none, `(?i)(?:invoice|rechnung|faktura)[\s#-]*` + numberQualifier, nil},
		{EntityCustomerNumber, "customer_number", 0.85, none, `(?i)(?:customer|kunden?)[\s#-]*(?:nr\.?|no\.?|nummer|id)?[:\s]*([A-Z0-9-]{4,15})`, nil},

		{EntityUUID, "uuid", 0.95, ci, `\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`, nil},

		{EntityHomeRoom, "room_de", 0.90, ci, words(germanRooms...), nil},
		{EntityHomeRoom, "room_en", 0.90, ci, words(englishRooms...), nil},
		{EntityHomeRoom, "room_floor", 0.85, ci, `\b(?:(?:Erd|Ober|Unter|Dach)geschoss` + roomQualifier + `|(?:1\.|2\.|3\.|erstes?|zweites?|drittes?)\s*(?:Stock(?:werk)?|OG|Etage)` + roomQualifier + `)\b`, nil},
		{EntityHomeRoom, "room_position", 0.85, ci, `\b(?:(?:vorderes?|hinteres?|linkes?|rechtes?|oberes?|unteres?|großes?|kleines?)\s+(?:Zimmer|Schlafzimmer|Bad|Badezimmer))\b`, nil},

		{EntityHomeZone, "zone_de", 0.85, ci, words(germanZones...), nil},
		{EntityHomeZone, "zone_en", 0.85, ci, words(englishZones...), nil},

		{EntityHomeScene, "scene_de_named", 0.90, none, `(?i)(?:Szene[n]?|Modus)[:\s]+\w+`, nil},
		{EntityHomeScene, "scene_de", 0.85, ci, words(germanScenes...), nil},
		{EntityHomeScene, "scene_en_named", 0.90, none, `(?i)(?:scene|mode)[:\s]+\w+`, nil},
		{EntityHomeScene, "scene_en", 0.85, ci, words(englishScenes...), nil},

		{EntityHomeDevice, "device_de", 0.85, ci, words(germanDevices...), nil},
		{EntityHomeDevice, "device_en", 0.85, ci, words(englishDevices...), nil},

		{EntityAustrianSVNR, "at_svnr", 0.90, none, `(?i)(?:e-?card|svnr?|sozialversicherung)[:\s]*\d{10}`, nil},
		{EntityGermanKVNR, "de_kvnr", 0.75, none, `\b[A-Z]\d{9}\b`, nil},

		{EntityLargeNumber, "large_number", 0.50, none, `\b\d{8,16}\b`, nil},
		{EntityDecimalNumber, "decimal_number", 0.40, none, `\b\d{1,6}[.,]\d{1,4}\b`, nil},
	}
	return specs
}
