package operations

import (
	"context"

	"github.com/JonMunkholm/csvimport/internal/core"
)

const (
	CRMPage    = "crm"
	ContactsID = "contacts"
)

// ContactsOperation imports CRM contacts keyed by email.
func ContactsOperation(repo ContactRepository) core.OperationDefinition {
	return core.OperationDefinition{
		PageID:        CRMPage,
		ID:            ContactsID,
		Label:         "Contacts",
		Description:   "Create or update contacts by email address.",
		SkipEmptyRows: true,
		Fields: []core.FieldDefinition{
			{Key: "email", Label: "Email", Type: core.TypeEmail, Required: true, Unique: true, Lowercase: true},
			{Key: "first_name", Label: "First Name", Type: core.TypeString, MaxLength: intPtr(100)},
			{Key: "last_name", Label: "Last Name", Type: core.TypeString, MaxLength: intPtr(100)},
			{Key: "phone", Label: "Phone", Type: core.TypeString, Pattern: `^\+?[0-9 ()-]{7,20}$`},
			{Key: "company", Label: "Company", Type: core.TypePost, PostType: "company", MatchBy: core.MatchTitle},
			{Key: "owner", Label: "Owner", Type: core.TypeUser, MatchBy: core.MatchLogin},
			{Key: "country", Label: "Country", Type: core.TypeString, Uppercase: true, MinLength: intPtr(2), MaxLength: intPtr(3)},
			{Key: "state", Label: "State", Type: core.TypeString,
				ValidateFunc: validateState, ProcessFunc: normalizeState},
			{Key: "tags", Label: "Tags", Type: core.TypeTerm, Taxonomy: "contact_tag", Create: true, Separator: ",;|"},
			{Key: "subscribed", Label: "Subscribed", Type: core.TypeBoolean, Default: "no"},
		},
		Processor: core.RowProcessorFunc(func(ctx context.Context, row core.ProcessedRow, meta core.RowMeta) (core.Outcome, error) {
			return repo.UpsertByEmail(ctx, Contact{
				Email:      str(row, "email"),
				FirstName:  str(row, "first_name"),
				LastName:   str(row, "last_name"),
				Phone:      str(row, "phone"),
				CompanyID:  entityID(row, "company"),
				OwnerID:    entityID(row, "owner"),
				State:      str(row, "state"),
				Country:    str(row, "country"),
				TagIDs:     entityIDs(row, "tags"),
				Subscribed: boolean(row, "subscribed"),
			})
		}),
	}
}
