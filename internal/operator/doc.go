// Package operator defines the contract every pipeline operator satisfies.
//
// An operator turns a batch into a Result: the kept records plus an explicit
// list of per-record failures. Whether those failures abort a run or are
// dropped with accounting is decided once, by the engine's failure policy,
// not inside operator code.
//
// Operator configuration is carried as a cty value (see Config) so HCL, YAML
// and JSON pipelines decode through the same struct-tag based path.
package operator
