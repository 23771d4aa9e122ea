package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// boxSchema describes an {x1, y1, x2, y2} box.
var boxSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"x1": map[string]interface{}{"type": "number"},
		"y1": map[string]interface{}{"type": "number"},
		"x2": map[string]interface{}{"type": "number"},
		"y2": map[string]interface{}{"type": "number"},
	},
	"required": []string{"x1", "y1", "x2", "y2"},
}

// transformProperties are shared by letterbox_transform and map_boxes.
func transformProperties() map[string]interface{} {
	return map[string]interface{}{
		"width": map[string]interface{}{
			"type":        "integer",
			"description": "Original image width in pixels",
		},
		"height": map[string]interface{}{
			"type":        "integer",
			"description": "Original image height in pixels",
		},
		"target_size": map[string]interface{}{
			"type":        "integer",
			"description": "Side of the square inference canvas (default from server configuration)",
		},
		"letterbox": map[string]interface{}{
			"type":        "boolean",
			"description": "Center the resized image on a padded square canvas (default from server configuration)",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	mapProps := transformProperties()
	mapProps["direction"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"to_original", "to_canvas"},
		"description": "to_original maps canvas boxes back onto the image; to_canvas is the forward mapping. Default to_original",
		"default":     "to_original",
	}
	mapProps["boxes"] = map[string]interface{}{
		"type":        "array",
		"items":       boxSchema,
		"description": "Boxes to map",
	}

	return []Tool{
		{
			Name:        "postprocess_image",
			Description: "Run the detection pipeline on one image: letterbox, infer, map boxes back to image coordinates, drop low-confidence candidates, suppress overlapping duplicates and optionally write the annotated JPEG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"write": map[string]interface{}{
						"type":        "boolean",
						"description": "Write the annotated image (default true)",
						"default":     true,
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Override the configured output directory",
					},
					"reload": map[string]interface{}{
						"type":        "boolean",
						"description": "Re-read the file even if it is cached",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "letterbox_transform",
			Description: "Compute the downscale-only resize and padding that fits an image into the inference canvas.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": transformProperties(),
				"required":   []string{"width", "height"},
			},
		},
		{
			Name:        "map_boxes",
			Description: "Map boxes between inference-canvas and original-image coordinates for a given image size.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": mapProps,
				"required":   []string{"width", "height", "boxes"},
			},
		},
		{
			Name:        "dedupe_detections",
			Description: "Apply the confidence pre-filter and greedy IoU suppression to a list of detections. Arrival order decides which of two overlapping detections survives.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"detections": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"class_id":   map[string]interface{}{"type": "integer"},
								"confidence": map[string]interface{}{"type": "number"},
								"box":        boxSchema,
							},
							"required": []string{"class_id", "confidence", "box"},
						},
						"description": "Detections in arrival order, all in one coordinate space",
					},
					"iou_threshold": map[string]interface{}{
						"type":        "number",
						"description": "A candidate whose IoU with a kept box exceeds this is dropped (default from server configuration)",
					},
					"min_confidence": map[string]interface{}{
						"type":        "number",
						"description": "Drop candidates below this confidence first (default from server configuration)",
					},
					"class_aware": map[string]interface{}{
						"type":        "boolean",
						"description": "Only suppress overlaps within the same class (default from server configuration)",
					},
				},
				"required": []string{"detections"},
			},
		},
		{
			Name:        "palette",
			Description: "List class ids with their names and display colors.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
