// Package rbac checks at startup that the service account can read what the gateway needs.
package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Permission is a single resource access requirement
type Permission struct {
	APIGroup  string
	Resource  string
	Verb      string
	Namespace string
	Name      string
}

// String returns group/resource:verb, with "core" for the empty group
func (p Permission) String() string {
	group := p.APIGroup
	if group == "" {
		group = "core"
	}
	return fmt.Sprintf("%s/%s:%s", group, p.Resource, p.Verb)
}

// PermissionCheckResult is the outcome of checking one Permission
type PermissionCheckResult struct {
	Permission Permission
	Allowed    bool
	Reason     string
	Error      error
}

// RequiredPermissions returns the permissions node name resolution depends on.
// Nodes are cluster scoped, so namespace is only recorded for reporting.
func RequiredPermissions(namespace string) []Permission {
	return []Permission{
		{APIGroup: "", Resource: "nodes", Verb: "list", Namespace: namespace},
	}
}

// Verifier checks permissions with SelfSubjectAccessReview
type Verifier struct {
	clientset kubernetes.Interface
	namespace string
	log       *logrus.Logger
}

// NewVerifier creates a new RBAC verifier
func NewVerifier(clientset kubernetes.Interface, namespace string, log *logrus.Logger) *Verifier {
	return &Verifier{
		clientset: clientset,
		namespace: namespace,
		log:       log,
	}
}

// CheckPermissions reviews every required permission and returns one result per permission
func (v *Verifier) CheckPermissions(ctx context.Context) []PermissionCheckResult {
	perms := RequiredPermissions(v.namespace)
	results := make([]PermissionCheckResult, 0, len(perms))

	for _, perm := range perms {
		result := v.check(ctx, perm)
		v.log.WithFields(logrus.Fields{
			"permission": perm.String(),
			"allowed":    result.Allowed,
			"reason":     result.Reason,
		}).Debug("Checked permission")
		results = append(results, result)
	}

	return results
}

// VerifyRequired checks every required permission. The error names each permission
// that is denied or could not be checked; results are returned either way for reporting.
func (v *Verifier) VerifyRequired(ctx context.Context) ([]PermissionCheckResult, error) {
	if v.clientset == nil {
		return nil, fmt.Errorf("kubernetes client not configured")
	}
	results := v.CheckPermissions(ctx)
	return results, RequireAllowed(results)
}

// RequireAllowed turns check results into an error listing each failed permission
func RequireAllowed(results []PermissionCheckResult) error {
	var denied []string
	for _, result := range results {
		switch {
		case result.Error != nil:
			denied = append(denied, fmt.Sprintf("%s (check failed: %v)", result.Permission, result.Error))
		case !result.Allowed:
			denied = append(denied, result.Permission.String())
		}
	}

	if len(denied) > 0 {
		return fmt.Errorf("missing required permissions: %s", strings.Join(denied, ", "))
	}
	return nil
}

func (v *Verifier) check(ctx context.Context, perm Permission) PermissionCheckResult {
	result := PermissionCheckResult{Permission: perm}
	if v.clientset == nil {
		result.Error = fmt.Errorf("kubernetes client not configured")
		return result
	}

	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Group:    perm.APIGroup,
				Resource: perm.Resource,
				Verb:     perm.Verb,
				Name:     perm.Name,
			},
		},
	}

	resp, err := v.clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		result.Error = fmt.Errorf("failed to create access review: %w", err)
		return result
	}

	result.Allowed = resp.Status.Allowed
	result.Reason = resp.Status.Reason
	return result
}

// GenerateReport formats check results for startup logs
func GenerateReport(results []PermissionCheckResult) string {
	var sb strings.Builder
	allowed := 0
	var failed []PermissionCheckResult
	for _, r := range results {
		if r.Allowed && r.Error == nil {
			allowed++
			continue
		}
		failed = append(failed, r)
	}

	sb.WriteString("RBAC Permission Report\n")
	fmt.Fprintf(&sb, "Total Permissions Checked: %d\n", len(results))
	fmt.Fprintf(&sb, "Allowed: %d\n", allowed)
	fmt.Fprintf(&sb, "Denied: %d\n", len(failed))

	if len(failed) == 0 {
		sb.WriteString("✅ All permissions verified successfully!\n")
		return sb.String()
	}

	sb.WriteString("Failed Permissions:\n")
	for _, r := range failed {
		fmt.Fprintf(&sb, "  ❌ %s\n", r.Permission)
		if r.Reason != "" {
			fmt.Fprintf(&sb, "     Reason: %s\n", r.Reason)
		}
		if r.Error != nil {
			fmt.Fprintf(&sb, "     Error: %v\n", r.Error)
		}
	}
	return sb.String()
}
