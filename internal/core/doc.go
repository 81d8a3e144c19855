// Package core provides the business logic for declarative CSV imports.
//
// This package holds all domain logic independent of any transport layer.
// It can be driven by web handlers, CLI tools, or tests without modification.
//
// # Operations
//
// An import is described by an [OperationDefinition] registered under a page:
//
//	reg.Add(core.OperationDefinition{
//	    PageID: "catalog",
//	    ID:     "products",
//	    Fields: []core.FieldDefinition{
//	        {Key: "sku", Type: core.TypeString, Required: true, Unique: true},
//	        {Key: "price", Type: core.TypeNumber, Minimum: &minPrice},
//	        {Key: "category", Type: core.TypeTerm, Taxonomy: "product_cat", Create: true, Separator: "|"},
//	    },
//	    Processor: productProcessor,
//	})
//
// Each field value flows through coercion, rule validation, an optional
// custom validator and processor, and finally entity resolution, which turns
// references to posts, terms, users and attachments into stored IDs.
//
// # Runs
//
// A run is driven by many short calls so that no request outlives a batch:
//
//  1. [Service.StartRun] resets the run record and fires BeforeImport
//  2. [Service.RunBatch] processes one slice of rows and merges its counters
//  3. [Service.Complete] seals the run; AfterImport fires on success
//
// Run state lives in a [StatsStore], so any server instance can serve the
// next batch. [Service.RequestCancel] sets a flag that the next batch call
// honours before touching more rows.
//
// # Dry Runs
//
// [Service.DryRun] validates a whole file, including duplicate detection
// across rows, without resolving entities or writing anything.
//
// # Error Handling
//
// Row-scoped failures are [*FieldError] values and only fail their row.
// Anything else aborts the batch. [MapError] turns any error into a
// user-facing message with a support code:
//
//   - IMP001-IMP004: operation and run state
//   - VAL001-VAL004: field and configuration validation
//   - FILE001-FILE004: uploaded files
//   - RUN001: capacity
//   - DB001-DB004: database and cache backends
package core
