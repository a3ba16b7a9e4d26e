package testutil

// WithStandardFlows adds the standard test tree.
//
// Structure:
//
//	demo.yml             demo/flow1 (valid)
//	billing/invoice.yaml billing/invoice (valid, with inputs and labels)
//	broken.yml           missing tasks
//	.hidden.yml          skipped by discovery
//	notes.txt            skipped by extension
func (b *Builder) WithStandardFlows() *Builder {
	return b.
		WithFlow("demo.yml", "demo", "flow1").
		WithFlow("billing/invoice.yaml", "billing", "invoice",
			Description("Generate monthly invoices"),
			Inputs(
				InputData{ID: "customer", Type: "STRING", Required: true, Description: "Customer id"},
				InputData{ID: "amount", Type: "FLOAT", Default: 10.5},
			),
			Labels("team", "finance")).
		WithFlow("broken.yml", "demo", "broken", Without("tasks")).
		WithFlow(".hidden.yml", "demo", "hidden").
		WithFile("notes.txt", "not a flow\n")
}
