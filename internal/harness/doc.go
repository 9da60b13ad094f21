// Package harness runs modify-plan test scenarios.
//
// A scenario names content type definitions, submits a sequence of modify
// requests to a real engine over a fresh in-memory store, and checks the
// outcome of each request, the step trace and the final table state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: tag_save
//	description: "Saving tags replaces the previous rows"
//	definitions: ../defs
//	setup:
//	  - mapping: "7"
//	    operation: insert
//	    params: { title: First, img: null, attachment: null }
//	flow:
//	  - mapping: "3"
//	    operation: save
//	    params: { contentId: 1, revision: 1, tag: [go, sql] }
//	    expect:
//	      rows: 2
//	assertions:
//	  - type: row_count
//	    table: article_tags
//	    where: { content_id: 1 }
//	    count: 2
//	  - type: change_order
//	    resources: [SimpleDelete3, SimpleInsert3]
//
// Inline CUE may be given under source instead of definitions.
//
// # Assertion Types
//
//   - change_contains: a step dispatched a resource, optionally in a plan type
//   - change_order: resources were first dispatched in the given order
//   - change_count: a resource was dispatched exactly N times
//   - final_state: one table row matches and holds the expected values
//   - row_count: N table rows match
//   - change_log: N change records were persisted for a content id
//
// # Deterministic Testing
//
// Each scenario runs with fixed request ids (request_prefix-1, -2, ...), a
// fixed wall clock and an isolated in-memory SQLite database, so traces are
// byte-identical across runs and can be compared with golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/tags.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
