package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bizportal/portal/internal/client"
	"github.com/bizportal/portal/internal/contracts"
	"github.com/bizportal/portal/internal/shared"
)

var (
	loginEmail    string
	loginPassword string

	companySearch  string
	companyStatus  string
	companyPage    int
	companyPerPage int

	contractType      string
	contractClient    string
	contractAddress   string
	contractSignatory string
	contractEffective string
	contractTerm      int
	contractServices  []string
	contractScope     string
	contractFormat    string

	outputDir    string
	exportFormat string
	exportFilter []string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store tokens locally",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and remove stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := c.Logout(ctx); err != nil && !errors.Is(err, client.ErrSessionExpired) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		me, err := c.Me(ctx)
		if err != nil {
			return sessionHint(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\nroles: %s\n", me.Name, me.Email, strings.Join(me.Roles, ", "))
		return nil
	},
}

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Sales companies",
}

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies",
	RunE:  runCompaniesList,
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Sales pipeline",
}

var pipelineSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show open pipeline totals by stage",
	RunE:  runPipelineSummary,
}

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Contract documents",
}

var contractsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an MSA or SOW and save it",
	Long: `Generate a contract document and write it to the output directory.

Examples:
  portalctl contracts generate --type MSA --client "Acme Ltd" --effective 2026-11-01
  portalctl contracts generate --type SOW --client "Acme Ltd" --effective 2026-11-01 \
      --service "Inbound support" --service "QA reviews" --format pdf`,
	RunE: runContractsGenerate,
}

var exportCmd = &cobra.Command{
	Use:       "export <module>",
	Short:     "Download a module export as csv or xlsx",
	Long:      "Modules: " + strings.Join(client.ExportModules(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: client.ExportModules(),
	RunE:      runExport,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (default: read from PORTAL_PASSWORD or stdin)")
	_ = loginCmd.MarkFlagRequired("email")

	companiesListCmd.Flags().StringVar(&companySearch, "search", "", "Filter by name or domain")
	companiesListCmd.Flags().StringVar(&companyStatus, "status", "", "Filter by status")
	companiesListCmd.Flags().IntVar(&companyPage, "page", 1, "Page number")
	companiesListCmd.Flags().IntVar(&companyPerPage, "per-page", shared.DefaultPerPage, "Rows per page")
	companiesCmd.AddCommand(companiesListCmd)

	pipelineCmd.AddCommand(pipelineSummaryCmd)

	f := contractsGenerateCmd.Flags()
	f.StringVar(&contractType, "type", string(contracts.TypeMSA), "Document type: MSA or SOW")
	f.StringVar(&contractClient, "client", "", "Client legal name (required)")
	f.StringVar(&contractAddress, "address", "", "Client address")
	f.StringVar(&contractSignatory, "signatory", "", "Client signatory")
	f.StringVar(&contractEffective, "effective", "", "Effective date YYYY-MM-DD (default: today)")
	f.IntVar(&contractTerm, "term", 12, "Term in months")
	f.StringArrayVar(&contractServices, "service", nil, "Service line, repeatable")
	f.StringVar(&contractScope, "scope", "", "Scope text for a SOW")
	f.StringVar(&contractFormat, "format", string(contracts.FormatDOCX), "Output format: docx or pdf")
	f.StringVarP(&outputDir, "out", "o", ".", "Output directory")
	_ = contractsGenerateCmd.MarkFlagRequired("client")
	contractsCmd.AddCommand(contractsGenerateCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().StringArrayVar(&exportFilter, "filter", nil, "Query filter key=value, repeatable")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", ".", "Output directory")
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if password == "" {
		password = os.Getenv("PORTAL_PASSWORD")
	}
	if password == "" {
		p, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		password = p
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	profile, err := c.Login(ctx, loginEmail, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", profile.Name, strings.Join(profile.Roles, ", "))
	return nil
}

func runCompaniesList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	page, err := c.ListCompanies(ctx, client.ListOptions{
		Page:    companyPage,
		PerPage: companyPerPage,
		Search:  companySearch,
		Sort:    "name",
		Extra:   map[string]string{"status": companyStatus},
	})
	if err != nil {
		return sessionHint(err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tINDUSTRY\tDOMAIN")
	for _, co := range page.Data {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", co.ID, co.Name, co.Status, co.Industry, co.Domain)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d total)\n",
		page.Pagination.Page, page.Pagination.TotalPages, page.Pagination.Total)
	return nil
}

func runPipelineSummary(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	summary, err := c.PipelineSummary(ctx)
	if err != nil {
		return sessionHint(err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "STAGE\tCOUNT\tVALUE\tWEIGHTED\t")
	for _, st := range summary.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t\n", st.Stage, st.Count, st.TotalValue, st.WeightedValue)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "open %d worth %.2f (weighted %.2f), won %d, lost %d, win rate %.1f%%\n",
		summary.OpenCount, summary.OpenValue, summary.WeightedValue, summary.WonCount, summary.LostCount, summary.WinRate)
	return nil
}

func runContractsGenerate(cmd *cobra.Command, args []string) error {
	effective := shared.Today()
	if contractEffective != "" {
		d, err := shared.ParseDate(contractEffective)
		if err != nil {
			return fmt.Errorf("--effective: %w", err)
		}
		effective = d
	}
	req := contracts.GenerateRequest{
		Type:            contracts.DocType(strings.ToUpper(contractType)),
		ClientName:      contractClient,
		ClientAddress:   contractAddress,
		ClientSignatory: contractSignatory,
		EffectiveDate:   effective,
		TermMonths:      contractTerm,
		Services:        contractServices,
		Scope:           contractScope,
		Format:          contracts.Format(strings.ToLower(contractFormat)),
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	file, err := c.GenerateContract(ctx, req)
	if err != nil {
		return sessionHint(err)
	}
	path, err := writeDownload(outputDir, file, "contract."+string(req.Format))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	filters := make(map[string]string, len(exportFilter))
	for _, kv := range exportFilter {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("--filter %q: want key=value", kv)
		}
		filters[k] = v
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	file, err := c.Export(ctx, args[0], exportFormat, filters)
	if err != nil {
		return sessionHint(err)
	}
	path, err := writeDownload(outputDir, file, args[0]+"."+exportFormat)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// writeDownload saves file under dir using the server supplied name.
func writeDownload(dir string, file client.Download, fallback string) (string, error) {
	name := filepath.Base(file.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fallback
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, file.Body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func sessionHint(err error) error {
	if errors.Is(err, client.ErrSessionExpired) {
		return fmt.Errorf("%w, run `portalctl login`", err)
	}
	return err
}
