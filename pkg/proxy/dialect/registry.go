package dialect

import (
	"net/url"

	"github.com/tidwall/sjson"

	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/gateway"
)

// Template names.
const (
	AzureOpenAI      = "azure-openai"
	OpenAI           = "openai"
	AzureAISearch    = "azure-ai-search"
	Ollama           = "ollama"
	AzureAIInference = "azure-ai-inference"
	Assistants       = "assistants"
)

// SearchODataOperation selects the OData-quoted search route variant.
const SearchODataOperation = "search.post.search"

// Registry holds the templates by name.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry builds every template using the configured API versions.
func NewRegistry(versions config.APIVersionsConfig) *Registry {
	r := &Registry{templates: make(map[string]*Template)}
	for _, t := range []*Template{
		azureOpenAI(versions.AzureOpenAI),
		openAI(),
		azureAISearch(),
		ollama(versions.AzureOpenAI),
		azureAIInference(versions.Inference),
		assistants(versions.Assistants),
	} {
		r.templates[t.Name] = t
	}
	return r
}

// Get returns the named template. It panics on an unknown name, which is a
// programming error in route registration.
func (r *Registry) Get(name string) *Template {
	t, ok := r.templates[name]
	if !ok {
		panic("dialect: unknown template " + name)
	}
	return t
}

func azureOpenAI(version string) *Template {
	return &Template{
		Name:          AzureOpenAI,
		Target:        pathName,
		MaxTokensPath: "max_tokens",
		APIVersion:    version,
		Auth:          AuthAPIKey,
		BuildURL: func(d *gateway.Deployment, req *Request) string {
			return joinURL(d.EndpointURL, "openai/deployments", url.PathEscape(d.DeploymentName), req.Operation)
		},
	}
}

func openAI() *Template {
	return &Template{
		Name:          OpenAI,
		Target:        bodyModel,
		MaxTokensPath: "max_tokens",
		Auth:          AuthBearer,
		BuildURL: func(d *gateway.Deployment, req *Request) string {
			return joinURL(d.EndpointURL, req.Operation)
		},
		TransformRequest: rewriteModel,
	}
}

func azureAISearch() *Template {
	return &Template{
		Name:              AzureAISearch,
		Target:            pathName,
		RequireAPIVersion: true,
		Auth:              AuthAPIKey,
		BuildURL: func(d *gateway.Deployment, req *Request) string {
			if req.Operation == SearchODataOperation {
				return joinURL(d.EndpointURL, "indexes('"+url.PathEscape(d.DeploymentName)+"')", "docs", SearchODataOperation)
			}
			return joinURL(d.EndpointURL, "indexes", url.PathEscape(d.DeploymentName), "docs/search")
		},
	}
}

func ollama(version string) *Template {
	return &Template{
		Name:          Ollama,
		Target:        bodyModel,
		MaxTokensPath: "options.num_predict",
		APIVersion:    version,
		Auth:          AuthAPIKey,
		BuildURL: func(d *gateway.Deployment, _ *Request) string {
			return joinURL(d.EndpointURL, "openai/deployments", url.PathEscape(d.DeploymentName), "chat/completions")
		},
		TransformRequest:  ollamaToChat,
		TransformResponse: chatToOllama,
		NewStreamEncoder:  newOllamaEncoder,
	}
}

func azureAIInference(version string) *Template {
	return &Template{
		Name:          AzureAIInference,
		Target:        bodyModel,
		MaxTokensPath: "max_tokens",
		APIVersion:    version,
		Auth:          AuthBearer,
		BuildURL: func(d *gateway.Deployment, req *Request) string {
			return joinURL(d.EndpointURL, "models", req.Operation)
		},
		TransformRequest: rewriteModel,
	}
}

func assistants(version string) *Template {
	return &Template{
		Name: Assistants,
		// the handler picks an assistant deployment when no model is given
		Target: func(req *Request) (string, error) {
			name, _ := bodyModel(req)
			return name, nil
		},
		APIVersion: version,
		Auth:       AuthAPIKey,
		BuildURL: func(d *gateway.Deployment, req *Request) string {
			return joinURL(d.EndpointURL, "openai", req.Operation)
		},
		TransformRequest: func(d *gateway.Deployment, req *Request, p *Parsed) ([]byte, error) {
			if p.Target == "" {
				return req.Body, nil
			}
			return rewriteModel(d, req, p)
		},
	}
}

// rewriteModel points the body's model field at the resolved deployment.
func rewriteModel(d *gateway.Deployment, req *Request, _ *Parsed) ([]byte, error) {
	body, err := sjson.SetBytes(req.Body, "model", d.DeploymentName)
	if err != nil {
		return nil, gateway.InvalidRequest("The request body could not be rewritten.")
	}
	return body, nil
}
