package main

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

var seedNames = []string{
	"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
	"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
	"Hendra Gunawan", "Ika Sari", "Lukman Hakim", "Maya Septiana", "Nanda Pratama",
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo class, approved students, questions and a published exam",
		Args:  cobra.NoArgs,
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.Int("teacher", 1, "Teacher id that owns the class and exam")
	f.String("class", "XII TKJ 2", "Class name (reused when it exists)")
	f.Int("students", len(seedNames), "Number of students to enroll")
	f.String("access-code", "", "Access code for the demo exam")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	teacherID, _ := f.GetInt("teacher")
	className, _ := f.GetString("class")
	count, _ := f.GetInt("students")
	accessCode, _ := f.GetString("access-code")
	count = min(max(count, 0), len(seedNames))

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := contextOf(cmd)
	out := cmd.OutOrStdout()

	classRepo := repository.NewClassRepository(e.pool)
	enrollments := repository.NewEnrollmentRepository(e.pool)
	questions := repository.NewQuestionRepository(e.pool)
	exams := repository.NewExamRepository(e.pool)

	// Reuse the class if it exists.
	var classID int
	err = e.pool.QueryRow(ctx, `SELECT id FROM classes WHERE name = $1 AND teacher_id = $2`, className, teacherID).Scan(&classID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		class := &model.Class{Name: className, TeacherID: teacherID}
		if err := classRepo.Create(ctx, class); err != nil {
			return fmt.Errorf("create class: %w", err)
		}
		classID = class.ID
		fmt.Fprintf(out, "Created class %q with ID: %d\n", className, classID)
	case err != nil:
		return fmt.Errorf("find class: %w", err)
	default:
		fmt.Fprintf(out, "Found existing class with ID: %d\n", classID)
	}

	enrolled := 0
	for i := 0; i < count; i++ {
		var studentID int
		err := e.pool.QueryRow(ctx,
			`INSERT INTO students (nisn, name) VALUES ($1, $2)
			 ON CONFLICT (nisn) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			fmt.Sprintf("seed%04d", i+1), seedNames[i],
		).Scan(&studentID)
		if err != nil {
			fmt.Fprintf(out, "Error creating student %s: %v\n", seedNames[i], err)
			continue
		}
		if err := enrollments.Upsert(ctx, classID, studentID, model.EnrollmentApproved); err != nil {
			fmt.Fprintf(out, "Error enrolling student %d: %v\n", studentID, err)
			continue
		}
		enrolled++
	}
	fmt.Fprintf(out, "Enrolled %d/%d students\n", enrolled, count)

	seeded := []model.Question{
		{Text: "2 + 3 = ?", Type: model.QuestionTypeSingleChoice, Options: []string{"4", "5", "6"}, CorrectAnswers: []string{"5"}, Points: 1},
		{Text: "Pilih bilangan prima", Type: model.QuestionTypeMultiChoice, Options: []string{"2", "4", "7", "9"}, CorrectAnswers: []string{"2", "7"}, Points: 2},
		{Text: "Ibu kota Indonesia?", Type: model.QuestionTypeFreeText, CorrectAnswers: []string{"Jakarta"}, Points: 1},
	}
	sections := make([]model.Section, 0, 2)
	var algebra, essay model.Section
	algebra.Name, essay.Name = "Aljabar", "Esai"
	for i := range seeded {
		seeded[i].TeacherID = teacherID
		if err := questions.Create(ctx, &seeded[i]); err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		if seeded[i].Type == model.QuestionTypeFreeText {
			essay.QuestionIDs = append(essay.QuestionIDs, seeded[i].ID)
		} else {
			algebra.QuestionIDs = append(algebra.QuestionIDs, seeded[i].ID)
		}
	}
	algebra.RandomizeQuestions = true
	sections = append(sections, algebra, essay)

	exam := &model.Exam{
		Title:           "Ujian Demo",
		ClassID:         classID,
		TeacherID:       teacherID,
		DurationMinutes: 30,
		PassPercentage:  60,
		Sections:        sections,
		AntiCheat:       model.DefaultAntiCheatPolicy(),
		IsPublished:     true,
	}
	if accessCode != "" {
		exam.AccessCode = &accessCode
	}
	if err := exams.Create(ctx, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}

	fmt.Fprintf(out, "\nSeed completed! Exam ID: %s\n", exam.ID)
	return nil
}
