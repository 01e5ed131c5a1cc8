package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"

	"bbkexplorer/internal/errors"
)

// graphqlRequest GraphQL请求体
type graphqlRequest struct {
	Query         string                 `json:"query" form:"query"`
	OperationName string                 `json:"operationName" form:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

var blockType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Block",
	Fields: graphql.Fields{
		"hash":                &graphql.Field{Type: graphql.String},
		"height":              &graphql.Field{Type: graphql.Int},
		"timestamp":           &graphql.Field{Type: graphql.Int},
		"tx_count":            &graphql.Field{Type: graphql.Int},
		"size":                &graphql.Field{Type: graphql.Int},
		"difficulty":          &graphql.Field{Type: graphql.Float},
		"merkle_root":         &graphql.Field{Type: graphql.String},
		"previous_block_hash": &graphql.Field{Type: graphql.String},
		"next_block_hash":     &graphql.Field{Type: graphql.String},
		"confirmations":       &graphql.Field{Type: graphql.Int},
		"transactions":        &graphql.Field{Type: graphql.NewList(graphql.String)},
	},
})

var outputType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Output",
	Fields: graphql.Fields{
		"n":       &graphql.Field{Type: graphql.Int},
		"address": &graphql.Field{Type: graphql.String},
		"value":   &graphql.Field{Type: graphql.Int},
	},
})

var graphqlTransactionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Transaction",
	Fields: graphql.Fields{
		"txid":          &graphql.Field{Type: graphql.String},
		"block_hash":    &graphql.Field{Type: graphql.String},
		"timestamp":     &graphql.Field{Type: graphql.Int},
		"size":          &graphql.Field{Type: graphql.Int},
		"fee":           &graphql.Field{Type: graphql.Int},
		"confirmations": &graphql.Field{Type: graphql.Int},
		"total_input":   &graphql.Field{Type: graphql.Int},
		"total_output":  &graphql.Field{Type: graphql.Int},
		"is_coinbase":   &graphql.Field{Type: graphql.Boolean},
		"is_staking":    &graphql.Field{Type: graphql.Boolean},
		"outputs":       &graphql.Field{Type: graphql.NewList(outputType)},
	},
})

var routeType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SearchRoute",
	Fields: graphql.Fields{
		"route":   &graphql.Field{Type: graphql.String},
		"query":   &graphql.Field{Type: graphql.String},
		"results": &graphql.Field{Type: graphql.Boolean},
	},
})

var healthType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Health",
	Fields: graphql.Fields{
		"online":    &graphql.Field{Type: graphql.Boolean},
		"message":   &graphql.Field{Type: graphql.String},
		"timestamp": &graphql.Field{Type: graphql.String},
	},
})

// newSchema 只读查询：block、transaction、latestBlocks、search、health
func newSchema(s *Server) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"block": &graphql.Field{
				Type: blockType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["id"].(string)
					block, err := s.explorer.GetBlock(p.Context, id)
					if errors.IsNotFound(err) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return block, nil
				},
			},
			"transaction": &graphql.Field{
				Type: graphqlTransactionType,
				Args: graphql.FieldConfigArgument{
					"txid": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					txid, _ := p.Args["txid"].(string)
					tx, err := s.explorer.GetTransaction(p.Context, txid)
					if errors.IsNotFound(err) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return tx, nil
				},
			},
			"latestBlocks": &graphql.Field{
				Type: graphql.NewList(blockType),
				Args: graphql.FieldConfigArgument{
					"count": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: HomeBlockCount},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					n, _ := p.Args["count"].(int)
					if n <= 0 || n > maxPageSize {
						n = HomeBlockCount
					}
					return s.explorer.GetLatestBlocks(p.Context, n)
				},
			},
			"search": &graphql.Field{
				Type: routeType,
				Args: graphql.FieldConfigArgument{
					"q": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, _ := p.Args["q"].(string)
					route, ok := s.resolver.Resolve(p.Context, q)
					if !ok {
						return nil, nil
					}
					return route, nil
				},
			},
			"health": &graphql.Field{
				Type: healthType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return s.explorer.GetHealth(p.Context), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

// graphqlHandler 处理 GET ?query= 和 POST JSON 请求
func (s *Server) graphqlHandler(c *gin.Context) {
	var req graphqlRequest
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, "无效的GraphQL请求: "+err.Error())
			return
		}
	} else {
		req.Query = c.Query("query")
		req.OperationName = c.Query("operationName")
	}
	if req.Query == "" {
		s.badRequest(c, "缺少query")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         *s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        c.Request.Context(),
	})
	if result.HasErrors() {
		s.logger.Debugf("GraphQL查询返回错误: %v", result.Errors)
	}
	c.JSON(http.StatusOK, result)
}
