// Package terraform drives a Terraform module directory as an alternative
// provisioning path to the az CLI.
//
// The module directory is staged into a scratch workspace so generated
// variable files never dirty the source tree, then init/plan/apply run
// against the staged copy with context timeouts.
package terraform
