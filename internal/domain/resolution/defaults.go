package resolution

// Built-in categories, in evaluation order.
const (
	CategoryOOM           = "oom"
	CategoryImagePull     = "image-pull"
	CategoryCrashLoop     = "crash-loop"
	CategoryResourceLimit = "resource-limit"
	CategoryServiceDown   = "service-down"
	CategoryPodError      = "pod-error"
)

// FailureStates are the pod states targeted by the pod-error actions.
func FailureStates() []string {
	return []string{
		"Error",
		"CrashLoopBackOff",
		"ImagePullBackOff",
		"ErrImagePull",
		"CreateContainerConfigError",
		"OOMKilled",
	}
}

// DefaultRules returns the built-in rule list. Each call returns fresh values.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: CategoryOOM,
			Match:    AnyOf{"oom", "memory"},
			Fixtures: []Fixture{{
				Deployment: "oom-app",
				Action: ActionTemplate{
					ActionType:       "scale_deployment",
					Description:      "Scale deployment {deployment} in {namespace} to 3 replicas to spread memory pressure",
					Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}", "replicas": 3},
					EstimatedTime:    "30s",
					RollbackPossible: true,
				},
			}},
			Generic: RequireDeployment{
				ActionType:       "scale_deployment",
				Description:      "Scale deployment {deployment} in {namespace} to 3 replicas after an out-of-memory event",
				Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}", "replicas": 3},
				Confidence:       0.85,
				RiskLevel:        RiskMedium,
				EstimatedTime:    "1m",
				RollbackPossible: true,
			},
		},
		{
			Category: CategoryImagePull,
			Match:    AnyOf{"imagepull", "image"},
			Fixtures: []Fixture{{
				Deployment: "bad-image-app",
				Action: ActionTemplate{
					ActionType:       "update_image",
					Description:      "Set the image of deployment {deployment} in {namespace} to nginx:latest",
					Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}", "image": "nginx:latest"},
					EstimatedTime:    "1m",
					RollbackPossible: true,
				},
			}},
			Generic: RequireDeployment{
				ActionType:       "rollback_deployment",
				Description:      "Roll deployment {deployment} in {namespace} back to its previous revision",
				Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}"},
				Confidence:       0.8,
				RiskLevel:        RiskMedium,
				EstimatedTime:    "2m",
				RollbackPossible: true,
			},
		},
		{
			Category: CategoryCrashLoop,
			Match:    AnyOf{"crash", "crashloop"},
			Fixtures: []Fixture{{
				Deployment: "crashloop-app",
				Action: ActionTemplate{
					ActionType:       "restart_deployment",
					Description:      "Restart deployment {deployment} in {namespace}",
					Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}"},
					EstimatedTime:    "1m",
					RollbackPossible: true,
				},
			}},
			Generic: RequireDeployment{
				ActionType:       "restart_deployment",
				Description:      "Restart deployment {deployment} in {namespace} to clear the crash loop",
				Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}"},
				Confidence:       0.85,
				RiskLevel:        RiskMedium,
				EstimatedTime:    "1m",
				RollbackPossible: true,
			},
		},
		{
			Category: CategoryResourceLimit,
			Match:    AnyOf{"resource", "limit"},
			Fixtures: []Fixture{{
				Deployment: "resource-app",
				Action: ActionTemplate{
					ActionType:       "update_resources",
					Description:      "Raise resource limits of deployment {deployment} in {namespace} to 512Mi memory and 500m CPU",
					Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}", "memory_limit": "512Mi", "cpu_limit": "500m"},
					EstimatedTime:    "1m",
					RollbackPossible: true,
				},
			}},
			Generic: RequireDeployment{
				ActionType:       "update_resources",
				Description:      "Raise resource limits of deployment {deployment} in {namespace} to 512Mi memory and 500m CPU",
				Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}", "memory_limit": "512Mi", "cpu_limit": "500m"},
				Confidence:       0.8,
				RiskLevel:        RiskMedium,
				EstimatedTime:    "2m",
				RollbackPossible: true,
			},
		},
		{
			Category: CategoryServiceDown,
			Match:    AllOf{"service", "down"},
			Fixtures: []Fixture{{
				Deployment: "service-app",
				Action: ActionTemplate{
					ActionType:       "scale_deployment",
					Description:      "Scale deployment {deployment} in {namespace} to 2 replicas to restore the service",
					Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}", "replicas": 2},
					EstimatedTime:    "30s",
					RollbackPossible: true,
				},
			}},
			Generic: RequireDeployment{
				ActionType:       "restart_deployment",
				Description:      "Restart deployment {deployment} in {namespace} backing the unavailable service",
				Params:           map[string]any{"deployment_name": "{deployment}", "namespace": "{namespace}"},
				Confidence:       0.85,
				RiskLevel:        RiskMedium,
				EstimatedTime:    "1m",
				RollbackPossible: true,
			},
		},
		{
			Category: CategoryPodError,
			Match:    AnyOf{"poderror"},
			Generic: Sequence{
				{
					ActionType:    "identify_error_pods",
					Description:   "List pods in {namespace} in a failure state",
					Params:        map[string]any{"namespace": "{namespace}", "states": FailureStates()},
					Confidence:    0.95,
					RiskLevel:     RiskLow,
					EstimatedTime: "10s",
				},
				{
					ActionType:    "restart_error_pods",
					Description:   "Delete pods in {namespace} in a failure state so their controllers recreate them",
					Params:        map[string]any{"namespace": "{namespace}", "states": FailureStates()},
					Confidence:    0.85,
					RiskLevel:     RiskMedium,
					EstimatedTime: "1m",
				},
			},
		},
	}
}

// DefaultTable returns a table over DefaultRules.
func DefaultTable() *Table {
	return MustNewTable(DefaultRules()...)
}
