package privacy

import (
	"fmt"
	"sort"
	"strings"
)

// EntityType names a category of sensitive data. Every type carries a fixed
// placeholder prefix used in the [PREFIX_n] wire format.
type EntityType string

const (
	// Personal
	EntityEmail     EntityType = "EMAIL"
	EntityPhone     EntityType = "PHONE"
	EntityName      EntityType = "NAME"
	EntityFirstName EntityType = "FIRST_NAME"
	EntityLastName  EntityType = "LAST_NAME"
	EntityUsername  EntityType = "USERNAME"
	EntityFullName  EntityType = "FULL_NAME"

	// Financial
	EntityCreditCard     EntityType = "CREDIT_CARD"
	EntityDebitCard      EntityType = "DEBIT_CARD"
	EntityIBAN           EntityType = "IBAN"
	EntityBICSwift       EntityType = "BIC_SWIFT"
	EntityBankAccount    EntityType = "BANK_ACCOUNT"
	EntityCurrencyAmount EntityType = "CURRENCY_AMOUNT"
	EntityMonetaryValue  EntityType = "MONETARY_VALUE"

	// Austria
	EntityAustrianSVN               EntityType = "AUSTRIAN_SVN"
	EntityAustrianSteuernummer      EntityType = "AUSTRIAN_STEUERNUMMER"
	EntityAustrianFirmenbuch        EntityType = "AUSTRIAN_FIRMENBUCH"
	EntityAustrianZVR               EntityType = "AUSTRIAN_ZVR"
	EntityAustrianUID               EntityType = "AUSTRIAN_UID"
	EntityAustrianPassport          EntityType = "AUSTRIAN_PASSPORT"
	EntityAustrianPersonalausweis   EntityType = "AUSTRIAN_PERSONALAUSWEIS"
	EntityGermanSozialversicherung  EntityType = "GERMAN_SOZIALVERSICHERUNG"
	EntityGermanSteuerID            EntityType = "GERMAN_STEUER_ID"
	EntityGermanPersonalausweis     EntityType = "GERMAN_PERSONALAUSWEIS"

	// United States
	EntitySSN              EntityType = "SSN"
	EntityUSPassport       EntityType = "US_PASSPORT"
	EntityUSDriversLicense EntityType = "US_DRIVERS_LICENSE"
	EntityUSTIN            EntityType = "US_TIN"

	// Government
	EntityPassport       EntityType = "PASSPORT"
	EntityNationalID     EntityType = "NATIONAL_ID"
	EntityDriversLicense EntityType = "DRIVERS_LICENSE"

	// Location
	EntityStreetAddress EntityType = "STREET_ADDRESS"
	EntityFullAddress   EntityType = "FULL_ADDRESS"
	EntityCity          EntityType = "CITY"
	EntityPostalCode    EntityType = "POSTAL_CODE"
	EntityCountry       EntityType = "COUNTRY"
	EntityCoordinates   EntityType = "COORDINATES"
	EntityGPS           EntityType = "GPS"

	// Vehicle
	EntityLicensePlate         EntityType = "LICENSE_PLATE"
	EntityAustrianLicensePlate EntityType = "AUSTRIAN_LICENSE_PLATE"
	EntityGermanLicensePlate   EntityType = "GERMAN_LICENSE_PLATE"
	EntityVIN                  EntityType = "VIN"

	// Network
	EntityIPAddress   EntityType = "IP_ADDRESS"
	EntityIPv6Address EntityType = "IPV6_ADDRESS"
	EntityMACAddress  EntityType = "MAC_ADDRESS"
	EntityURL         EntityType = "URL"
	EntityDomain      EntityType = "DOMAIN"

	// Health
	EntityHealthInsuranceNumber EntityType = "HEALTH_INSURANCE_NUMBER"
	EntityAustrianSVNR          EntityType = "AUSTRIAN_SVNR"
	EntityGermanKVNR            EntityType = "GERMAN_KVNR"

	// Date and time
	EntityDateOfBirth EntityType = "DATE_OF_BIRTH"
	EntityDate        EntityType = "DATE"
	EntityTime        EntityType = "TIME"
	EntityDateTime    EntityType = "DATETIME"
	EntityAge         EntityType = "AGE"

	// Numbers
	EntityQuantity      EntityType = "QUANTITY"
	EntityPercentage    EntityType = "PERCENTAGE"
	EntityGenericNumber EntityType = "GENERIC_NUMBER"
	EntityLargeNumber   EntityType = "LARGE_NUMBER"
	EntityDecimalNumber EntityType = "DECIMAL_NUMBER"
	EntityOrdinal       EntityType = "ORDINAL"

	// Communication
	EntityFax      EntityType = "FAX"
	EntityMobile   EntityType = "MOBILE"
	EntityLandline EntityType = "LANDLINE"

	// Employment
	EntityEmployeeID  EntityType = "EMPLOYEE_ID"
	EntityCompanyName EntityType = "COMPANY_NAME"

	// Identifiers
	EntityUUID            EntityType = "UUID"
	EntitySerialNumber    EntityType = "SERIAL_NUMBER"
	EntityReferenceNumber EntityType = "REFERENCE_NUMBER"
	EntityOrderNumber     EntityType = "ORDER_NUMBER"
	EntityInvoiceNumber   EntityType = "INVOICE_NUMBER"
	EntityCustomerNumber  EntityType = "CUSTOMER_NUMBER"
	EntityContractNumber  EntityType = "CONTRACT_NUMBER"
	EntityPolicyNumber    EntityType = "POLICY_NUMBER"

	// Smart home
	EntityHomeRoom   EntityType = "HOME_ROOM"
	EntityHomeZone   EntityType = "HOME_ZONE"
	EntityHomeScene  EntityType = "HOME_SCENE"
	EntityHomeDevice EntityType = "HOME_DEVICE"

	EntityCustom EntityType = "CUSTOM"
)

// prefixes is the closed placeholder vocabulary. Downstream consumers rely on
// these strings, so entries must never change once shipped.
var prefixes = map[EntityType]string{
	EntityEmail:     "EMAIL",
	EntityPhone:     "PHONE",
	EntityName:      "NAME",
	EntityFirstName: "FNAME",
	EntityLastName:  "LNAME",
	EntityUsername:  "USER",
	EntityFullName:  "FULLNAME",

	EntityCreditCard:     "CC",
	EntityDebitCard:      "DEBIT",
	EntityIBAN:           "IBAN",
	EntityBICSwift:       "BIC",
	EntityBankAccount:    "ACCOUNT",
	EntityCurrencyAmount: "AMOUNT",
	EntityMonetaryValue:  "MONEY",

	EntityAustrianSVN:              "AT_SVN",
	EntityAustrianSteuernummer:     "AT_STEUER",
	EntityAustrianFirmenbuch:       "AT_FN",
	EntityAustrianZVR:              "AT_ZVR",
	EntityAustrianUID:              "AT_UID",
	EntityAustrianPassport:         "AT_PASS",
	EntityAustrianPersonalausweis:  "AT_PERSO",
	EntityGermanSozialversicherung: "DE_SVN",
	EntityGermanSteuerID:           "DE_STEUER",
	EntityGermanPersonalausweis:    "DE_PERSO",

	EntitySSN:              "US_SSN",
	EntityUSPassport:       "US_PASS",
	EntityUSDriversLicense: "US_DL",
	EntityUSTIN:            "US_TIN",

	EntityPassport:       "PASSPORT",
	EntityNationalID:     "NATIONAL_ID",
	EntityDriversLicense: "DL",

	EntityStreetAddress: "STREET",
	EntityFullAddress:   "ADDRESS",
	EntityCity:          "CITY",
	EntityPostalCode:    "ZIP",
	EntityCountry:       "COUNTRY",
	EntityCoordinates:   "COORDS",
	EntityGPS:           "GPS",

	EntityLicensePlate:         "PLATE",
	EntityAustrianLicensePlate: "AT_PLATE",
	EntityGermanLicensePlate:   "DE_PLATE",
	EntityVIN:                  "VIN",

	EntityIPAddress:   "IP",
	EntityIPv6Address: "IPV6",
	EntityMACAddress:  "MAC",
	EntityURL:         "URL",
	EntityDomain:      "DOMAIN",

	EntityHealthInsuranceNumber: "HEALTH_ID",
	EntityAustrianSVNR:          "AT_SVNR",
	EntityGermanKVNR:            "DE_KVNR",

	EntityDateOfBirth: "DOB",
	EntityDate:        "DATE",
	EntityTime:        "TIME",
	EntityDateTime:    "DATETIME",
	EntityAge:         "AGE",

	EntityQuantity:      "QTY",
	EntityPercentage:    "PERCENT",
	EntityGenericNumber: "NUM",
	EntityLargeNumber:   "BIGNUM",
	EntityDecimalNumber: "DECIMAL",
	EntityOrdinal:       "ORDINAL",

	EntityFax:      "FAX",
	EntityMobile:   "MOBILE",
	EntityLandline: "LANDLINE",

	EntityEmployeeID:  "EMP_ID",
	EntityCompanyName: "COMPANY",

	EntityUUID:            "UUID",
	EntitySerialNumber:    "SERIAL",
	EntityReferenceNumber: "REF",
	EntityOrderNumber:     "ORDER",
	EntityInvoiceNumber:   "INVOICE",
	EntityCustomerNumber:  "CUST_NUM",
	EntityContractNumber:  "CONTRACT",
	EntityPolicyNumber:    "POLICY",

	EntityHomeRoom:   "ROOM",
	EntityHomeZone:   "ZONE",
	EntityHomeScene:  "SCENE",
	EntityHomeDevice: "DEVICE",

	EntityCustom: "CUSTOM",
}

// Prefix returns the placeholder prefix for the type. Unknown types fall back
// to the custom prefix.
func (t EntityType) Prefix() string {
	if p, ok := prefixes[t]; ok {
		return p
	}
	return prefixes[EntityCustom]
}

// Placeholder formats the token for the given per-type index.
func (t EntityType) Placeholder(index int) string {
	return fmt.Sprintf("[%s_%d]", t.Prefix(), index)
}

// Valid reports whether t belongs to the closed vocabulary.
func (t EntityType) Valid() bool {
	_, ok := prefixes[t]
	return ok
}

// AllEntityTypes returns every known type in lexical order.
func AllEntityTypes() []EntityType {
	types := make([]EntityType, 0, len(prefixes))
	for t := range prefixes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseEntityType resolves a configured detector name. Matching is
// case-insensitive and accepts hyphens in place of underscores.
func ParseEntityType(name string) (EntityType, error) {
	t := EntityType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_")))
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type: %s", name)
	}
	return t, nil
}
