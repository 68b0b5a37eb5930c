package obs

import "context"

// Version is the GetVersion response.
type Version struct {
	ObsVersion          string   `json:"obsVersion"`
	ObsWebSocketVersion string   `json:"obsWebSocketVersion"`
	RPCVersion          int      `json:"rpcVersion"`
	Platform            string   `json:"platform"`
	PlatformDescription string   `json:"platformDescription"`
	AvailableRequests   []string `json:"availableRequests"`
}

// Supports reports whether the server advertises requestType.
func (v *Version) Supports(requestType string) bool {
	for _, r := range v.AvailableRequests {
		if r == requestType {
			return true
		}
	}
	return false
}

// Version queries the server and plugin versions.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.Call(ctx, "GetVersion", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type programScene struct {
	CurrentProgramSceneName string `json:"currentProgramSceneName"`
	SceneName               string `json:"sceneName"`
}

// CurrentProgramScene returns the name of the scene currently on program.
func (c *Client) CurrentProgramScene(ctx context.Context) (string, error) {
	var resp programScene
	if err := c.Call(ctx, "GetCurrentProgramScene", nil, &resp); err != nil {
		return "", err
	}
	if resp.CurrentProgramSceneName != "" {
		return resp.CurrentProgramSceneName, nil
	}
	// Servers before 5.0.0 only report sceneName.
	return resp.SceneName, nil
}

// SetCurrentProgramScene switches program output to name.
func (c *Client) SetCurrentProgramScene(ctx context.Context, name string) error {
	return c.Call(ctx, "SetCurrentProgramScene", map[string]string{"sceneName": name}, nil)
}

// SceneNames lists the scenes in the current collection.
func (c *Client) SceneNames(ctx context.Context) ([]string, error) {
	var resp struct {
		Scenes []struct {
			SceneName string `json:"sceneName"`
		} `json:"scenes"`
	}
	if err := c.Call(ctx, "GetSceneList", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Scenes))
	for _, s := range resp.Scenes {
		names = append(names, s.SceneName)
	}
	return names, nil
}
