package auditor

import (
	"errors"
	"fmt"

	"github.com/opscart/k8s-gap-auditor/pkg/quantity"
)

// Op names the external call an UpstreamError came from
type Op string

const (
	OpListNamespaces Op = "list namespaces"
	OpListWorkloads  Op = "list workloads"
	OpRecommend      Op = "recommend"
)

// UpstreamError reports a failed call to the orchestration API or the recommendation engine
type UpstreamError struct {
	Op        Op
	Namespace string
	Workload  string
	Err       error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Workload != "":
		return fmt.Sprintf("%s failed for %s/%s: %v", e.Op, e.Namespace, e.Workload, e.Err)
	case e.Namespace != "":
		return fmt.Sprintf("%s failed for namespace %s: %v", e.Op, e.Namespace, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// DataIntegrityError reports current resources and recommendations that cannot be paired safely
type DataIntegrityError struct {
	Namespace string
	Workload  string
	Container string
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation in %s/%s container %q: %s",
		e.Namespace, e.Workload, e.Container, e.Reason)
}

// classify returns err as-is when it already belongs to the audit error
// taxonomy and wraps anything else in an UpstreamError. A ParseError is
// returned as a located copy; the original may be shared between callers.
func classify(op Op, namespace, workload string, err error) error {
	var pe *quantity.ParseError
	if errors.As(err, &pe) {
		located := *pe
		if located.Namespace == "" {
			located.Namespace = namespace
		}
		if located.Workload == "" {
			located.Workload = workload
		}
		return &located
	}

	var die *DataIntegrityError
	if errors.As(err, &die) {
		return err
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}

	return &UpstreamError{Op: op, Namespace: namespace, Workload: workload, Err: err}
}
