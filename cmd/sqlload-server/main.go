// sqlload-server serves GraphQL queries against a registry of entity
// kinds stored in a SQL database or in DynamoDB.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/jjeffery/errors"
	"github.com/jjeffery/kv"
	"github.com/jjeffery/sqlload"
	"github.com/jjeffery/sqlload/dynamostore"
	"github.com/jjeffery/sqlload/gqlbind"
	"github.com/jjeffery/sqlload/sqlstore"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

var command struct {
	registry    string
	store       string
	driver      string
	dsn         string
	naming      string
	wait        time.Duration
	maxKeys     int
	concurrency int
	indexes     []string
	filters     []string
	consistent  bool
	listen      string
	verbose     bool
}

func main() {
	log.SetFlags(0)
	pflag.StringVarP(&command.registry, "registry", "r", "registry.yaml", "registry file")
	pflag.StringVar(&command.store, "store", "sql", "store type (sql or dynamodb)")
	pflag.StringVar(&command.driver, "driver", "sqlite3", "SQL driver name")
	pflag.StringVar(&command.dsn, "dsn", os.Getenv("SQLLOAD_DSN"), "SQL data source name")
	pflag.StringVar(&command.naming, "naming", "snake", "naming strategy (snake, same or lower)")
	pflag.DurationVar(&command.wait, "wait", 0, "batch wait period (0 dispatches on demand)")
	pflag.IntVar(&command.maxKeys, "max-keys", sqlstore.DefaultMaxKeys, "maximum keys in one SQL query")
	pflag.IntVar(&command.concurrency, "concurrency", 4, "concurrent queries for one batch")
	pflag.StringArrayVar(&command.indexes, "index", nil, "DynamoDB index for a relation (Owner.relation=index)")
	pflag.StringArrayVar(&command.filters, "filter-index", nil, "DynamoDB index for a filter (Kind:col1,col2=index)")
	pflag.BoolVar(&command.consistent, "consistent-read", false, "use consistent reads with DynamoDB")
	pflag.StringVarP(&command.listen, "listen", "l", ":8080", "listen address")
	pflag.BoolVarP(&command.verbose, "verbose", "v", false, "log batches and queries")
	pflag.Parse()
	if len(pflag.Args()) > 0 {
		log.Fatalln("unrecognized args:", strings.Join(pflag.Args(), " "))
	}

	reg, err := readRegistry(command.registry)
	if err != nil {
		log.Fatalln(err)
	}
	naming, err := sqlload.ParseNaming(command.naming)
	if err != nil {
		log.Fatalln(err)
	}
	adapter, err := newAdapter(context.Background())
	if err != nil {
		log.Fatalln(err)
	}
	schema, err := gqlbind.NewSchema(reg, gqlbind.Config{
		Naming:  naming,
		NoWhere: !supportsFilters(adapter),
	})
	if err != nil {
		log.Fatalln(err)
	}

	metrics := sqlload.NewMetrics(prometheus.DefaultRegisterer)
	logger := log.New(os.Stderr, "", log.LstdFlags)
	opts := []sqlload.Option{
		sqlload.WithNaming(naming),
		sqlload.WithMetrics(metrics),
		sqlload.WithWait(command.wait),
	}
	if command.verbose {
		opts = append(opts, sqlload.WithLogger(logger))
	}

	handler := gqlbind.NewHandler(schema, func(r *http.Request) *sqlload.Session {
		opts := opts
		if id := r.Header.Get("X-Request-Id"); id != "" {
			opts = append(opts[:len(opts):len(opts)], sqlload.WithID(id))
		}
		return sqlload.NewSession(r.Context(), adapter, reg, opts...)
	})

	router := mux.NewRouter()
	router.Handle("/graphql", handler).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	log.Println("listening", kv.List{"addr", command.listen, "store", command.store}.String())
	if err := http.ListenAndServe(command.listen, router); err != nil {
		log.Fatalln(err)
	}
}

func readRegistry(filename string) (*sqlload.Registry, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open registry")
	}
	defer file.Close()
	return sqlload.ReadRegistry(file)
}

func newAdapter(ctx context.Context) (sqlload.Adapter, error) {
	switch command.store {
	case "sql":
		return newSQLStore()
	case "dynamodb":
		return newDynamoStore(ctx)
	}
	return nil, errors.New("unknown store").With("store", command.store)
}

func newSQLStore() (*sqlstore.Store, error) {
	dsn := command.dsn
	if command.driver == "mysql" {
		// scan DATETIME columns as time.Time
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "invalid mysql dsn")
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}
	db, err := sqlx.Open(command.driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open database").With("driver", command.driver)
	}
	opts := []sqlstore.Option{
		sqlstore.WithMaxKeys(command.maxKeys),
		sqlstore.WithConcurrency(command.concurrency),
	}
	if command.verbose {
		opts = append(opts, sqlstore.WithSQLLogger(sqlLogger{}))
	}
	return sqlstore.New(db, opts...), nil
}

func newDynamoStore(ctx context.Context) (*dynamostore.Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load AWS config")
	}
	opts := []dynamostore.Option{
		dynamostore.WithConcurrency(command.concurrency),
	}
	if command.consistent {
		opts = append(opts, dynamostore.WithConsistentRead())
	}
	for _, s := range command.indexes {
		owner, relation, index, err := parseIndex(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dynamostore.WithIndex(owner, relation, index))
	}
	for _, s := range command.filters {
		kind, columns, index, err := parseFilterIndex(s)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dynamostore.WithFilterIndex(kind, columns, index))
	}
	return dynamostore.New(dynamodb.NewFromConfig(cfg), opts...), nil
}

// supportsFilters reports whether filter queries can be served. The
// DynamoDB store can only filter on the indexes it has been given.
func supportsFilters(adapter sqlload.Adapter) bool {
	if _, ok := adapter.(sqlload.FilterAdapter); !ok {
		return false
	}
	if command.store == "dynamodb" && len(command.filters) == 0 {
		return false
	}
	return true
}

// parseFilterIndex parses "Kind:col1,col2=index".
func parseFilterIndex(s string) (kind string, columns []string, index string, err error) {
	eq := strings.IndexByte(s, '=')
	colon := strings.IndexByte(s, ':')
	if eq < 0 || colon < 0 || colon > eq {
		return "", nil, "", errors.New("invalid filter index, want Kind:col1,col2=index").With("filter-index", s)
	}
	kind, index = s[:colon], s[eq+1:]
	for _, col := range strings.Split(s[colon+1:eq], ",") {
		if col = strings.TrimSpace(col); col != "" {
			columns = append(columns, col)
		}
	}
	if kind == "" || index == "" || len(columns) == 0 {
		return "", nil, "", errors.New("invalid filter index, want Kind:col1,col2=index").With("filter-index", s)
	}
	return kind, columns, index, nil
}

// parseIndex parses "Owner.relation=index".
func parseIndex(s string) (owner, relation, index string, err error) {
	eq := strings.IndexByte(s, '=')
	dot := strings.IndexByte(s, '.')
	if eq < 0 || dot < 0 || dot > eq {
		return "", "", "", errors.New("invalid index, want Owner.relation=index").With("index", s)
	}
	owner, relation, index = s[:dot], s[dot+1:eq], s[eq+1:]
	if owner == "" || relation == "" || index == "" {
		return "", "", "", errors.New("invalid index, want Owner.relation=index").With("index", s)
	}
	return owner, relation, index, nil
}

type sqlLogger struct{}

func (sqlLogger) LogSQL(query string, args []interface{}, rowsAffected int, err error) {
	list := kv.List{"query", query, "args", args, "rows", rowsAffected}
	if err != nil {
		list = append(list, "error", err)
	}
	log.Println("sql", list.String())
}
