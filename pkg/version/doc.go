// Package version implements flexible-precision version parsing and
// comparison for Kubernetes and NVIDIA driver version strings.
//
// Versions may carry 1, 2, or 3 numeric components; comparisons respect
// the precision of the left operand, so "1.32" matches any 1.32.x.
// Build metadata such as "-gke.1337000" or "+aks" is preserved in Extras
// and ignored for ordering.
package version
