package seed

// Plan is a default subscription plan, identified by Name.
type Plan struct {
	Name        string
	Description string
	Price       float64
	Interval    string
	Features    []string
	ModelAccess []string
	UsageLimits map[string]int
}

// Model is a default AI model definition, identified by Name.
type Model struct {
	Name        string
	Description string
	Type        string
	Provider    string
	ModelID     string
	Parameters  map[string]float64
}

var DefaultPlans = []Plan{
	{
		Name:        "Basic",
		Description: "Access to Pi-o model with basic features",
		Price:       9.99,
		Interval:    "month",
		Features:    []string{"Text generation", "Question answering", "Basic chat"},
		ModelAccess: []string{"Pi-o"},
		UsageLimits: map[string]int{"messages_per_day": 100, "tokens_per_message": 2000},
	},
	{
		Name:        "Pro",
		Description: "Access to Pi-o and Pi-Transformer models with advanced features",
		Price:       19.99,
		Interval:    "month",
		Features: []string{
			"Text generation",
			"Question answering",
			"Advanced chat",
			"Code generation",
			"Creative writing",
		},
		ModelAccess: []string{"Pi-o", "Pi-Transformer"},
		UsageLimits: map[string]int{"messages_per_day": 500, "tokens_per_message": 4000},
	},
	{
		Name:        "Super Pi",
		Description: "Access to all models including Pi-Alpha with premium features",
		Price:       49.99,
		Interval:    "month",
		Features: []string{
			"Text generation",
			"Question answering",
			"Premium chat",
			"Code generation",
			"Creative writing",
			"Image generation",
			"Music generation",
			"Video generation",
			"Emotional intelligence",
		},
		ModelAccess: []string{"Pi-o", "Pi-Transformer", "Pi-Alpha"},
		UsageLimits: map[string]int{"messages_per_day": 2000, "tokens_per_message": 8000},
	},
}

var DefaultModels = []Model{
	{
		Name:        "Pi-o",
		Description: "The foundational model, optimized for general-purpose tasks",
		Type:        "text",
		Provider:    "together_ai",
		ModelID:     "mistralai/Mistral-7B-Instruct-v0.2",
		Parameters:  map[string]float64{"temperature": 0.7, "max_tokens": 2000, "top_p": 0.9},
	},
	{
		Name:        "Pi-Transformer",
		Description: "An advanced model leveraging transformer architecture for complex tasks",
		Type:        "text",
		Provider:    "together_ai",
		ModelID:     "meta-llama/Llama-2-70b-chat-hf",
		Parameters:  map[string]float64{"temperature": 0.8, "max_tokens": 4000, "top_p": 0.95},
	},
	{
		Name:        "Pi-Alpha",
		Description: "A cutting-edge model with enhanced emotional intelligence and self-learning capabilities",
		Type:        "text",
		Provider:    "together_ai",
		ModelID:     "anthropic/claude-3-opus-20240229",
		Parameters:  map[string]float64{"temperature": 0.9, "max_tokens": 8000, "top_p": 0.98},
	},
}
